// Package i18n holds the transport-level string tables. The engine itself
// never formats user-facing text.
package i18n

import "fmt"

// Languages maps supported language codes to their display names.
var Languages = map[string]string{
	"pl": "Polski",
	"en": "English",
	"ru": "Русский",
}

// DefaultLanguage is used when a user has no stored preference.
const DefaultLanguage = "pl"

// LanguageCodes returns the supported codes in a stable display order.
func LanguageCodes() []string {
	return []string{"pl", "en", "ru"}
}

// IsSupported reports whether the language code has a string table.
func IsSupported(lang string) bool {
	_, ok := texts[lang]
	return ok
}

// T returns the translated text for a key, formatted with args. Unknown
// languages fall back to the default table; unknown keys return the key
// itself so missing entries surface in the chat instead of hiding.
func T(lang, key string, args ...any) string {
	table, ok := texts[lang]
	if !ok {
		table = texts[DefaultLanguage]
	}
	text, ok := table[key]
	if !ok {
		if text, ok = texts[DefaultLanguage][key]; !ok {
			return key
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}

var texts = map[string]map[string]string{
	"pl": {
		"start":             "Cześć! Jestem pebbletrail.\n\nWyślij mi zdjęcie kamyka:\n• Jeśli kamyk jest już zarejestrowany — pokażę informacje\n• Jeśli nowy — pomogę zarejestrować",
		"help":              "Dostępne komendy:\n/start - Rozpocznij pracę z botem\n/help - Pokaż pomoc\n/mine - Moje kamyki\n/find <opis> - Szukaj kamyka po opisie\n/lang - Zmień język\n/cancel - Anuluj bieżącą operację\n\nPo prostu wyślij zdjęcie kamyka!",
		"lang_select":       "Wybierz język:",
		"lang_changed":      "Język zmieniony na Polski",
		"analyzing":         "Analizuję zdjęcie...",
		"not_a_stone":       "❌ Kamyk nie został rozpoznany.\n\nUpewnij się, że na zdjęciu jest płaski kamyk z wzorem i spróbuj ponownie.",
		"cropped_stone":     "📷 Rozpoznany kamyk",
		"stone_found":       "✅ Kamyk znaleziony!",
		"stone_name":        "📛 Nazwa: %s",
		"stone_description": "📝 Opis: %s",
		"stone_seen":        "📍 Widziany %d raz(y)",
		"new_stone":         "🆕 Nowy kamyk!",
		"ask_name":          "Podaj nazwę dla kamyka:",
		"name_too_short":    "Nazwa za krótka. Podaj nazwę (minimum 2 znaki):",
		"ask_description":   "Nazwa: %s\n\nDodać opis? (lub naciśnij «Pomiń»)",
		"ask_location":      "Wyślij lokalizację, wpisz kod pocztowy lub naciśnij «Pomiń».",
		"btn_send_location": "📍 Wyślij lokalizację",
		"btn_skip":          "Pomiń",
		"sighting_saved":    "✅ Zapisano w historii!",
		"stone_registered":  "✅ Kamyk «%s» zarejestrowany!",
		"location_label":    "🗺 Lokalizacja: %s",
		"map_caption":       "🗺 Mapa podróży\n🟢 start → 🔴 koniec",
		"my_stones":         "🪨 Twoje kamyki:",
		"no_stones":         "Nie masz jeszcze zarejestrowanych kamyków.\n\nWyślij zdjęcie kamyka, aby zarejestrować!",
		"search_results":    "🔍 Znalezione kamyki:",
		"search_empty":      "Nic nie znaleziono. Spróbuj innego opisu.",
		"search_usage":      "Użycie: /find <opis>\nPrzykład: /find biedronka na niebieskim tle",
		"cancelled":         "Anulowano.",
		"nothing_to_cancel": "Nie ma nic do anulowania.",
		"expected_photo":    "Wyślij zdjęcie kamyka, aby zacząć.",
		"step_failed":       "⚠️ Coś poszło nie tak. Spróbuj ponownie.",
	},
	"en": {
		"start":             "Hi! I am pebbletrail.\n\nSend me a photo of a stone:\n• If the stone is already registered — I will show its info\n• If it is new — I will help you register it",
		"help":              "Available commands:\n/start - Start working with the bot\n/help - Show help\n/mine - My stones\n/find <description> - Search stones by description\n/lang - Change language\n/cancel - Cancel the current operation\n\nJust send a photo of a stone!",
		"lang_select":       "Choose a language:",
		"lang_changed":      "Language changed to English",
		"analyzing":         "Analyzing the photo...",
		"not_a_stone":       "❌ No painted stone recognized.\n\nMake sure the photo shows a flat painted stone and try again.",
		"cropped_stone":     "📷 Recognized stone",
		"stone_found":       "✅ Stone found!",
		"stone_name":        "📛 Name: %s",
		"stone_description": "📝 Description: %s",
		"stone_seen":        "📍 Seen %d time(s)",
		"new_stone":         "🆕 New stone!",
		"ask_name":          "Give the stone a name:",
		"name_too_short":    "Name too short. Enter a name (at least 2 characters):",
		"ask_description":   "Name: %s\n\nAdd a description? (or press “Skip”)",
		"ask_location":      "Send a location, type a postal code, or press “Skip”.",
		"btn_send_location": "📍 Send location",
		"btn_skip":          "Skip",
		"sighting_saved":    "✅ Saved to the history!",
		"stone_registered":  "✅ Stone “%s” registered!",
		"location_label":    "🗺 Location: %s",
		"map_caption":       "🗺 Travel map\n🟢 start → 🔴 end",
		"my_stones":         "🪨 Your stones:",
		"no_stones":         "You have no registered stones yet.\n\nSend a photo of a stone to register one!",
		"search_results":    "🔍 Stones found:",
		"search_empty":      "Nothing found. Try a different description.",
		"search_usage":      "Usage: /find <description>\nExample: /find ladybug on a blue background",
		"cancelled":         "Cancelled.",
		"nothing_to_cancel": "Nothing to cancel.",
		"expected_photo":    "Send a photo of a stone to start.",
		"step_failed":       "⚠️ Something went wrong. Please try again.",
	},
	"ru": {
		"start":             "Привет! Я pebbletrail.\n\nОтправь мне фото камня:\n• Если камень уже зарегистрирован — покажу информацию\n• Если новый — помогу зарегистрировать",
		"help":              "Доступные команды:\n/start - Начать работу с ботом\n/help - Показать помощь\n/mine - Мои камни\n/find <описание> - Поиск камня по описанию\n/lang - Сменить язык\n/cancel - Отменить текущую операцию\n\nПросто отправь фото камня!",
		"lang_select":       "Выберите язык:",
		"lang_changed":      "Язык изменён на русский",
		"analyzing":         "Анализирую фото...",
		"not_a_stone":       "❌ Камень не распознан.\n\nУбедитесь, что на фото плоский камень с рисунком, и попробуйте снова.",
		"cropped_stone":     "📷 Распознанный камень",
		"stone_found":       "✅ Камень найден!",
		"stone_name":        "📛 Название: %s",
		"stone_description": "📝 Описание: %s",
		"stone_seen":        "📍 Замечен %d раз(а)",
		"new_stone":         "🆕 Новый камень!",
		"ask_name":          "Дайте камню название:",
		"name_too_short":    "Название слишком короткое. Введите название (минимум 2 символа):",
		"ask_description":   "Название: %s\n\nДобавить описание? (или нажмите «Пропустить»)",
		"ask_location":      "Отправьте локацию, введите почтовый индекс или нажмите «Пропустить».",
		"btn_send_location": "📍 Отправить локацию",
		"btn_skip":          "Пропустить",
		"sighting_saved":    "✅ Сохранено в истории!",
		"stone_registered":  "✅ Камень «%s» зарегистрирован!",
		"location_label":    "🗺 Локация: %s",
		"map_caption":       "🗺 Карта путешествия\n🟢 старт → 🔴 финиш",
		"my_stones":         "🪨 Ваши камни:",
		"no_stones":         "У вас пока нет зарегистрированных камней.\n\nОтправьте фото камня, чтобы зарегистрировать!",
		"search_results":    "🔍 Найденные камни:",
		"search_empty":      "Ничего не найдено. Попробуйте другое описание.",
		"search_usage":      "Использование: /find <описание>\nПример: /find божья коровка на синем фоне",
		"cancelled":         "Отменено.",
		"nothing_to_cancel": "Нечего отменять.",
		"expected_photo":    "Отправьте фото камня, чтобы начать.",
		"step_failed":       "⚠️ Что-то пошло не так. Попробуйте ещё раз.",
	},
}
