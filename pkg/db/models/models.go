package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// tests and the sqlite dev mode.
func All() []any {
	return []any{
		&Category{},
		&Product{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OutboxEvent{},
	}
}
