package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionCode - номер версии датасета в десятых долях: v1.0 -> 10, v1.9 -> 19, v2.0 -> 20.
// Целочисленное хранение дает точную арифметику при любом числе увеличений.
type VersionCode int64

// InitialVersion - версия, с которой создается каждый датасет
const InitialVersion VersionCode = 10

// Next возвращает следующую версию (+0.1)
func (c VersionCode) Next() VersionCode {
	return c + 1
}

// Label форматирует код как "vX.Y"
func (c VersionCode) Label() string {
	return fmt.Sprintf("v%d.%d", int64(c)/10, int64(c)%10)
}

func (c VersionCode) String() string {
	return c.Label()
}

// ParseVersionLabel разбирает метку версии: "v1.3", "1.3", "v2".
// Дробная часть допускает не больше одной цифры.
func ParseVersionLabel(label string) (VersionCode, error) {
	s := strings.TrimSpace(label)
	if strings.HasPrefix(s, "v") || strings.HasPrefix(s, "V") {
		s = s[1:]
	}
	if s == "" {
		return 0, ErrorValidation("version label is empty", [2]string{"version", label})
	}

	major, minor, hasMinor := strings.Cut(s, ".")
	if !isDigits(major) || (hasMinor && (len(minor) != 1 || !isDigits(minor))) {
		return 0, ErrorValidation(
			"version label must look like v<major>.<digit>",
			[2]string{"version", label},
		)
	}

	n, err := strconv.ParseInt(major, 10, 64)
	if err != nil || n > (1<<62)/10 {
		return 0, ErrorValidation("version label is out of range", [2]string{"version", label})
	}

	code := VersionCode(n * 10)
	if hasMinor {
		code += VersionCode(minor[0] - '0')
	}
	return code, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
