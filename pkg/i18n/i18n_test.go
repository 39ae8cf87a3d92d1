package i18n

import (
	"reflect"
	"testing"
)

func TestAllMessagesTranslated(t *testing.T) {
	for name, m := range map[string]Messages{"en": messagesEN, "ru": messagesRU} {
		v := reflect.ValueOf(m)
		for i := 0; i < v.NumField(); i++ {
			if v.Field(i).String() == "" {
				t.Errorf("%s: %s is empty", name, v.Type().Field(i).Name)
			}
		}
	}
}

func TestSetLanguage(t *testing.T) {
	defer SetLanguage(LangEN)

	SetLanguage("RU")
	if GetLanguage() != LangRU || M().DiagUser != messagesRU.DiagUser {
		t.Fatalf("language=%q", GetLanguage())
	}
	SetLanguage("de")
	if GetLanguage() != LangEN {
		t.Fatalf("unknown language should fall back to en, got %q", GetLanguage())
	}
	if Get("DiagUser") != "User: %s" {
		t.Fatalf("Get(DiagUser)=%q", Get("DiagUser"))
	}
	if Get("NoSuchKey") != "NoSuchKey" {
		t.Fatal("unknown key should echo")
	}
}
