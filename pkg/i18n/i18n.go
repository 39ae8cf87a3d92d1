// Package i18n holds operator-facing messages in English and Russian.
package i18n

import (
	"reflect"
	"strings"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangRU Language = "ru"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting        string
	ConfigLoaded    string
	DryRunMode      string
	ServerListening string
	ShuttingDown    string
	LoopStarted     string
	CycleComplete   string
	CycleCrashed    string

	// Auth health
	AuthFailure  string
	EnvCorrected string
	UserDisabled string
	AuthReset    string

	// Diagnostics
	DiagUserNotFound   string
	DiagUser           string
	DiagTestnetFlag    string
	DiagMaskedKey      string
	DiagSecretLen      string
	DiagTestingEnv     string
	DiagNumericBalance string
	DiagErrorEnvelope  string
	DiagClockOffset    string
	DiagClockFailed    string

	// Admin commands
	ImportedUsers        string
	CredentialsEncrypted string
	TokenIssued          string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:        "Starting bybit-autotrader...",
	ConfigLoaded:    "Config loaded (users: %s, trades: %s, ledger: %s)",
	DryRunMode:      "Dry-run mode: orders are simulated",
	ServerListening: "Admin API listening on %s",
	ShuttingDown:    "Shutting down gracefully...",
	LoopStarted:     "Loop started, interval %s",
	CycleComplete:   "Cycle complete: %d users, %d checked, %d skipped in %s",
	CycleCrashed:    "Cycle crashed: %v",

	// Auth health
	AuthFailure:  "User %s auth failure #%d",
	EnvCorrected: "Auto-corrected TESTNET for user %s -> %v",
	UserDisabled: "User %s disabled due to repeated auth failures",
	AuthReset:    "User %s re-enabled",

	// Diagnostics
	DiagUserNotFound:   "User not found: %s",
	DiagUser:           "User: %s",
	DiagTestnetFlag:    "TESTNET flag in settings: %v",
	DiagMaskedKey:      "Masked API key: %s",
	DiagSecretLen:      "API secret len: %d",
	DiagTestingEnv:     "Testing env testnet=%v",
	DiagNumericBalance: "-> numeric balance: %v",
	DiagErrorEnvelope:  "-> retCode/retMsg: %v %s",
	DiagClockOffset:    "-> server clock offset: %d ms",
	DiagClockFailed:    "-> clock sync failed: %s",

	// Admin commands
	ImportedUsers:        "Imported %d users from %s",
	CredentialsEncrypted: "Credentials of user %s encrypted with key v%d",
	TokenIssued:          "Token valid until %s",
}

// Russian messages
var messagesRU = Messages{
	// System
	Starting:        "Запуск bybit-autotrader...",
	ConfigLoaded:    "Конфигурация загружена (пользователи: %s, сделки: %s, журнал: %s)",
	DryRunMode:      "Режим симуляции: ордера не отправляются",
	ServerListening: "Админ API слушает %s",
	ShuttingDown:    "Корректное завершение...",
	LoopStarted:     "Цикл запущен, интервал %s",
	CycleComplete:   "Цикл завершён: %d пользователей, %d проверено, %d пропущено за %s",
	CycleCrashed:    "Сбой цикла: %v",

	// Auth health
	AuthFailure:  "Пользователь %s: ошибка авторизации #%d",
	EnvCorrected: "TESTNET пользователя %s исправлен автоматически -> %v",
	UserDisabled: "Пользователь %s отключён после повторных ошибок авторизации",
	AuthReset:    "Пользователь %s снова включён",

	// Diagnostics
	DiagUserNotFound:   "Пользователь не найден: %s",
	DiagUser:           "Пользователь: %s",
	DiagTestnetFlag:    "Флаг TESTNET в настройках: %v",
	DiagMaskedKey:      "API ключ (маска): %s",
	DiagSecretLen:      "Длина API секрета: %d",
	DiagTestingEnv:     "Проверка окружения testnet=%v",
	DiagNumericBalance: "-> числовой баланс: %v",
	DiagErrorEnvelope:  "-> retCode/retMsg: %v %s",
	DiagClockOffset:    "-> смещение часов сервера: %d мс",
	DiagClockFailed:    "-> синхронизация времени не удалась: %s",

	// Admin commands
	ImportedUsers:        "Импортировано пользователей: %d из %s",
	CredentialsEncrypted: "Ключи пользователя %s зашифрованы ключом v%d",
	TokenIssued:          "Токен действителен до %s",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch Language(strings.ToLower(string(lang))) {
	case LangRU:
		currentLang = LangRU
		messages = &messagesRU
	default:
		currentLang = LangEN
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
