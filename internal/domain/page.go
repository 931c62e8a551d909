package domain

import "math"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPageNumber держит смещение в пределах int32
	MaxPageNumber = math.MaxInt32 / MaxPageSize
)

// Page - номер страницы (с 1) и ее размер
type Page struct {
	Number int
	Size   int
}

// Normalize подставляет значения по умолчанию: страница < 1 -> 1, размер < 1 -> 10, размер > 100 -> 100.
// Номер страницы больше MaxPageNumber урезается.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Number > MaxPageNumber {
		p.Number = MaxPageNumber
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Pages возвращает число страниц для total записей
func (p Page) Pages(total int64) int {
	if total <= 0 || p.Size <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}
