package entity

import (
	"github.com/google/uuid"
)

// ID identificador opaco validado (forma canónica UUID).
// Se construye una sola vez en el borde (handler/DTO) y se usa tal cual en el
// resto del sistema: ningún código interno vuelve a preguntar "¿esto ya es un id?".
type ID string

// ParseID valida y normaliza un identificador recibido del exterior.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return ID(u.String()), nil
}

// NewID genera un identificador nuevo.
func NewID() ID {
	return ID(uuid.New().String())
}

// String devuelve la forma canónica.
func (id ID) String() string { return string(id) }

// IsZero indica si el identificador está vacío.
func (id ID) IsZero() bool { return id == "" }

// ParseOptionalID valida un identificador opcional; cadena vacía devuelve nil.
// Se usa para variant_id: "sin variante" es una identidad propia y nunca se
// mezcla con una variante concreta.
func ParseOptionalID(s string) (*ID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := ParseID(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
