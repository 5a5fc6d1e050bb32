package domain

import "time"

// Item описывает картину в каталоге галереи.
// Каждая работа существует в единственном экземпляре: после продажи
// флаг Available сбрасывается и повторная покупка невозможна.
type Item struct {
	ID          string
	Title       string
	Description string
	// Price хранит цену в целых денежных единицах, без дробной части.
	Price    int64
	ImageURL string
	// Available показывает, что работа ещё не продана.
	Available bool
	// Featured отмечает работы, выводимые на витрине.
	Featured  bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты каталожной записи.
func (i *Item) ValidateInvariants() []error {
	var errs []error

	if i.Title == "" {
		errs = append(errs, ErrItemTitleRequired)
	}
	if i.Price < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}

	return errs
}

// ItemFilter задаёт условия выборки каталога.
type ItemFilter struct {
	FeaturedOnly  bool
	AvailableOnly bool
	// Limit ограничивает размер выборки; ноль означает отсутствие лимита.
	Limit int
}
