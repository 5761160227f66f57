package simulation

import (
	"fmt"
	"time"
)

type table struct {
	columns []string
	rows    [][]any
}

func (t table) column(name string) int {
	for i, c := range t.columns {
		if c == name {
			return i
		}
	}
	return -1
}

var epoch = time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

func dataset(slug string) map[string]table {
	services := table{
		columns: []string{"id", "name", "duration_minutes", "price_cents"},
		rows: [][]any{
			{int64(1), "Corte de cabello", int64(30), int64(3500)},
			{int64(2), "Manicure", int64(45), int64(4000)},
			{int64(3), "Masaje relajante", int64(60), int64(9000)},
		},
	}
	staff := table{
		columns: []string{"id", "name", "role"},
		rows: [][]any{
			{int64(1), "Ana Torres", "owner"},
			{int64(2), "Luis Rojas", "staff"},
		},
	}
	clients := table{columns: []string{"id", "name", "email", "phone"}}
	for i := int64(1); i <= 4; i++ {
		clients.rows = append(clients.rows, []any{
			i,
			fmt.Sprintf("Cliente %d", i),
			fmt.Sprintf("cliente%d@%s.example", i, slug),
			fmt.Sprintf("+51 900 000 %03d", i),
		})
	}
	reservations := table{columns: []string{"id", "client_id", "service_id", "staff_id", "starts_at", "status"}}
	statuses := []string{"confirmed", "pending", "completed", "cancelled", "confirmed"}
	for i := int64(1); i <= 5; i++ {
		reservations.rows = append(reservations.rows, []any{
			i,
			(i-1)%4 + 1,
			(i-1)%3 + 1,
			(i-1)%2 + 1,
			epoch.Add(time.Duration(i-1) * 26 * time.Hour),
			statuses[i-1],
		})
	}

	return map[string]table{
		"services":     services,
		"staff":        staff,
		"clients":      clients,
		"reservations": reservations,
	}
}
