package textclean

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"html tags", "<p>Ноутбук</p><br/>HP", "Ноутбук HP"},
		{"entities", "A &amp; B", "A & B"},
		{"nbsp and tabs", "Процессор\u00a0Intel\tCore", "Процессор Intel Core"},
		{"zero width", "Ле\u200bно\u200dво\ufeff", "Леново"},
		{"collapse whitespace", "  много   пробелов \n\n строки ", "много пробелов строки"},
		{"nfkc fullwidth", "ＡＢＣ１２３", "ABC123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clean(tt.input))
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LangRU, DetectLanguage(""))
	assert.Equal(t, LangRU, DetectLanguage("Laptop 15 inch"))
	assert.Equal(t, LangRU, DetectLanguage("Поставка ноутбуков для школы"))
	assert.Equal(t, LangKZ, DetectLanguage("Қазақстан Республикасының әкімдігі"))
	// 1 Kazakh letter among 10 Cyrillic letters
	assert.Equal(t, LangMixed, DetectLanguage("абвгдежзиқ"))
}

func TestSentences(t *testing.T) {
	got := Sentences("Первое. Второе! Третье? Четвёртое; пятое")
	assert.Equal(t, []string{"Первое.", "Второе!", "Третье?", "Четвёртое;", "пятое"}, got)

	assert.Nil(t, Sentences(""))
	assert.Equal(t, []string{"Версия 2.5 без пробела"}, Sentences("Версия 2.5 без пробела"))
}

func TestNormalizeNumbers(t *testing.T) {
	assert.Equal(t, "Вес 2.5 кг", NormalizeNumbers("Вес 2,5 кг"))
	assert.Equal(t, "Бюджет 1500000 тенге", NormalizeNumbers("Бюджет 1 500 000 тенге"))
	assert.Equal(t, "Код 1,2345", NormalizeNumbers("Код 1,2345"))
	assert.Equal(t, "без чисел", NormalizeNumbers("без чисел"))
}
