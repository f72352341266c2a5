// Package i18n renders schema-definition issue codes for people.
package i18n

import "strings"

// Translator retrieves localized messages for Issue codes.
// data fills {placeholders} in the message, e.g. {"path": "/schemas/a"}.
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

var dictionaries = map[string]map[string]string{
	"en": {
		"invalid_type":   "{path}: wrong type",
		"required":       "{path}: required value missing",
		"unknown_key":    "{path}: unknown key",
		"duplicate_key":  "{path}: declared more than once",
		"unknown_schema": "{path}: refers to an undeclared schema",
		"unknown_getter": "{path}: unknown getter step",
		"parse_error":    "{path}: not valid YAML or JSON",
	},
	"ja": {
		"invalid_type":   "{path}: 型が不正です",
		"required":       "{path}: 必須の値が不足しています",
		"unknown_key":    "{path}: 未知のキーです",
		"duplicate_key":  "{path}: 重複して宣言されています",
		"unknown_schema": "{path}: 未宣言のスキーマを参照しています",
		"unknown_getter": "{path}: 未知のゲッターです",
		"parse_error":    "{path}: YAML/JSON として解析できません",
	},
}

func (t dictTranslator) Message(code string, data map[string]string) string {
	msg, ok := dictionaries[t.lang][code]
	if !ok {
		msg = "{path}: " + code
	}
	if len(data) == 0 {
		return strings.TrimPrefix(msg, "{path}: ")
	}
	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

var currentTranslator Translator = dictTranslator{lang: "en"}

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if _, ok := dictionaries[lang]; !ok {
		lang = "en"
	}
	currentTranslator = dictTranslator{lang: lang}
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		currentTranslator = dictTranslator{lang: "en"}
		return
	}
	currentTranslator = tr
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string { return currentTranslator.Message(code, data) }
