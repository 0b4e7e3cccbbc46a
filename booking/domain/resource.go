package domain

import (
	"strconv"
	"time"
)

// ResourceID identifica um recurso com capacidade limitada (ex: um imóvel).
type ResourceID int64

func (id ResourceID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseResourceID converte o segmento da URL / flag em ResourceID.
func ParseResourceID(s string) (ResourceID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ResourceID(v), nil
}

// Resource é criado uma vez (seed/admin) e só tem a capacidade alterada pelo reset.
type Resource struct {
	ID       ResourceID
	Name     string
	Capacity int
}

func (r Resource) Validate() error {
	if r.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// DefaultName é usado quando o reset cria um recurso que ainda não existe.
func DefaultName(id ResourceID) string { return "Property " + id.String() }

// Reservation é imutável depois de criada; só some via Clear (reset).
type Reservation struct {
	ID         int64
	ResourceID ResourceID
	Holder     string
	CreatedAt  time.Time
}

// Status é a fotografia de um recurso para o relatório.
type Status struct {
	ResourceID   ResourceID
	Name         string
	Capacity     int
	CurrentCount int
	IsOverbooked bool
	Holders      []string
}

// NewStatus monta o Status a partir do recurso e das reservas vigentes.
func NewStatus(r Resource, reservations []Reservation) Status {
	holders := make([]string, 0, len(reservations))
	for _, res := range reservations {
		holders = append(holders, res.Holder)
	}
	return Status{
		ResourceID:   r.ID,
		Name:         r.Name,
		Capacity:     r.Capacity,
		CurrentCount: len(reservations),
		IsOverbooked: len(reservations) > r.Capacity,
		Holders:      holders,
	}
}
