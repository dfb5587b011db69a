// Package models contains GORM persistence models that map to database tables.
// They are kept apart from the domain types so the domain layer stays free of
// ORM tags; each model carries ToDomain / FromDomain mappers.
//
//   - base.go: BaseModel and AggregateModel
//   - group_order.go: group orders, participant ledger and reminder log
//   - chat.go: group chat messages
//   - catalog.go: read-only product catalog rows
package models
