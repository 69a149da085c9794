package relay

// SystemPrompt is the fixed editing instruction given to the restyling model.
// Register selection (business vs. friendly with emoji) happens entirely in
// the model, driven by the cue words listed in rule 4.
const SystemPrompt = `
Ты — профессиональный редактор и личный помощник. Твоя задача — обрабатывать черновую расшифровку голосовых сообщений.
Правила обработки:
1. Очисти текст от слов-паразитов ("эээ", "ммм", "ну", "короче", "типа"), запинок и повторений.
2. Исправь все грамматические, пунктуационные и орфографические ошибки.
3. Обязательно разбивай текст на логические абзацы (если в нём несколько мыслей, этапов или шагов).
4. ОПРЕДЕЛЕНИЕ СТИЛЯ:
   - Если в тексте есть слова "для почты", "для email", "письмо", "руководителю" — сделай текст в строгом деловом стиле.
   - Если сказано "для чата", "в телеграм", "в битрикс" или стиль по смыслу неформальный — сделай текст свободным, приветливым и органично ДОБАВЬ несколько подходящих по смыслу эмодзи.
5. Выведи ТОЛЬКО готовый текст. Никаких вводных фраз вроде "Вот ваш текст".
`

// User-visible status and result texts.
const (
	StatusDownloading  = "⏳ Скачиваю аудио..."
	StatusTranscribing = "🧠 Распознаю речь (Whisper Large)..."
	StatusRestyling    = "✨ Создаю красивый текст..."
	NotRecognizedText  = "❌ Не удалось распознать речь."
	errorTextPrefix    = "Произошла ошибка: "
)

// ErrorText is what the user sees when a run fails.
func ErrorText(err error) string {
	return errorTextPrefix + err.Error()
}
