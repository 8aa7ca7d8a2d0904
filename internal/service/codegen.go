package service

import (
	"crypto/rand"
	"fmt"
	"io"
)

// codeAlphabet — заглавные латинские буквы и цифры: код удобно диктовать
// и вводить вручную.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator выпускает случайные коды подтверждения фиксированной длины.
// Источник случайности криптографический; в тестах подменяется через reader.
type CodeGenerator struct {
	length int
	reader io.Reader
}

// NewCodeGenerator создаёт генератор с заданной длиной кода.
func NewCodeGenerator(length int) *CodeGenerator {
	if length <= 0 {
		length = 5
	}
	return &CodeGenerator{length: length, reader: rand.Reader}
}

// NewCodeGeneratorWithReader создаёт генератор с внешним источником
// случайности (для тестов).
func NewCodeGeneratorWithReader(length int, reader io.Reader) *CodeGenerator {
	gen := NewCodeGenerator(length)
	gen.reader = reader
	return gen
}

// Generate возвращает новый код. Байты вне диапазона отбрасываются,
// чтобы распределение по алфавиту оставалось равномерным.
func (g *CodeGenerator) Generate() (string, error) {
	// 252 = 7*36: наибольшее кратное размеру алфавита в диапазоне байта.
	const limit = byte(252)

	code := make([]byte, g.length)
	buf := make([]byte, 1)
	for i := 0; i < g.length; {
		if _, err := io.ReadFull(g.reader, buf); err != nil {
			return "", fmt.Errorf("codegen: не удалось прочитать случайные байты: %w", err)
		}
		if buf[0] >= limit {
			continue
		}
		code[i] = codeAlphabet[int(buf[0])%len(codeAlphabet)]
		i++
	}

	return string(code), nil
}
