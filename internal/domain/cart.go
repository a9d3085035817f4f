package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Удалённое API и локальное хранилище ждут цену JSON-числом, а не строкой.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product — карточка товара из каталога удалённого API.
type Product struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
}

// CartLine — одна позиция локальной корзины.
//
// JSON-ключи совпадают с форматом, который витрина исторически писала
// в локальное хранилище.
type CartLine struct {
	ProductID int             `json:"id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image"`
	// Quantity всегда > 0: позиция с нулевым количеством удаляется.
	Quantity int `json:"quantity"`
}

// Subtotal возвращает стоимость позиции: цена * количество.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// NewCartLine собирает позицию из карточки товара.
func NewCartLine(p Product, quantity int) CartLine {
	return CartLine{
		ProductID: p.ID,
		Title:     p.Title,
		UnitPrice: p.Price,
		ImageURL:  p.Image,
		Quantity:  quantity,
	}
}

// LocalCartState — состояние корзины на стороне клиента.
type LocalCartState struct {
	// Lines упорядочены по времени добавления.
	Lines []CartLine
	// RemoteCartID равен nil, пока удалённая корзина не создана.
	RemoteCartID *int
}

// TotalItems — сумма количеств по всем позициям.
func (s LocalCartState) TotalItems() int {
	total := 0
	for _, line := range s.Lines {
		total += line.Quantity
	}
	return total
}

// UniqueItemsCount — количество различных товаров.
func (s LocalCartState) UniqueItemsCount() int {
	return len(s.Lines)
}

// TotalPrice — сумма unitPrice * quantity.
func (s LocalCartState) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// IsEmpty сообщает, что в корзине нет позиций.
func (s LocalCartState) IsEmpty() bool {
	return len(s.Lines) == 0
}

// RemoteCartProduct — позиция удалённой корзины.
type RemoteCartProduct struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

// RemoteCart — корзина пользователя, которой владеет удалённая система.
type RemoteCart struct {
	ID       int                 `json:"id"`
	UserID   int                 `json:"userId"`
	Date     string              `json:"date"`
	Products []RemoteCartProduct `json:"products"`
}

// dateLayouts перечисляет форматы дат, которые встречаются в ответах API.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParsedDate разбирает Date. Пустая или некорректная дата даёт нулевое время,
// то есть такая корзина считается самой старой.
func (c RemoteCart) ParsedDate() time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, c.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ProductDetails — позиция в payload создания корзины.
//
// Quantity передаётся вместе с карточкой, чтобы созданная корзина не теряла количества.
type ProductDetails struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Quantity    int             `json:"quantity"`
}

// CartPayload — тело запросов создания и обновления удалённой корзины.
// Products содержит либо []RemoteCartProduct (update), либо []ProductDetails (create).
type CartPayload struct {
	ID       int    `json:"id"`
	UserID   int    `json:"userId"`
	Date     string `json:"date,omitempty"`
	Products any    `json:"products"`
}

// User — профиль пользователя витрины.
type User struct {
	ID       int      `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Name     UserName `json:"name"`
	Phone    string   `json:"phone,omitempty"`
}

// UserName — имя и фамилия.
type UserName struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

// ProductInput — тело создания и обновления товара в каталоге.
type ProductInput struct {
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
}

// UserInput — тело создания и обновления пользователя.
type UserInput struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password,omitempty"`
	Name     UserName `json:"name"`
	Phone    string   `json:"phone,omitempty"`
}
