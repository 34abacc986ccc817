package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de referencia de un asiento del ledger de stock.
const (
	ReferenceTypeOPENING     = "OPENING"
	ReferenceTypePURCHASE    = "PURCHASE"
	ReferenceTypeSALE        = "SALE"
	ReferenceTypeSALERETURN  = "SALE_RETURN"
	ReferenceTypeSALEVOID    = "SALE_VOID"
	ReferenceTypeSALEREFUND  = "SALE_REFUND"
	ReferenceTypeADJUSTMENT  = "ADJUSTMENT"
	ReferenceTypeTRANSFERIN  = "TRANSFER_IN"
	ReferenceTypeTRANSFEROUT = "TRANSFER_OUT"
)

// ValidReferenceType verifica que el tipo pertenezca al catálogo.
func ValidReferenceType(t string) bool {
	switch t {
	case ReferenceTypeOPENING, ReferenceTypePURCHASE, ReferenceTypeSALE,
		ReferenceTypeSALERETURN, ReferenceTypeSALEVOID, ReferenceTypeSALEREFUND,
		ReferenceTypeADJUSTMENT, ReferenceTypeTRANSFERIN, ReferenceTypeTRANSFEROUT:
		return true
	}
	return false
}

// LedgerEntry un asiento del ledger de stock: delta de cantidad con signo para
// una identidad (negocio, outlet, producto, variante-o-nula). Inmutable una vez
// escrito; el on-hand de una identidad es la suma de sus deltas.
type LedgerEntry struct {
	ID            ID
	BusinessID    ID
	OutletID      ID
	ProductID     ID
	VariantID     *ID
	QuantityDelta decimal.Decimal
	ReferenceType string
	ReferenceID   *ID
	UnitCost      *decimal.Decimal
	Note          string
	CreatedBy     ID
	CreatedAt     time.Time
}

// StockIdentity clave exacta de identidad de stock. Una entrada con variante es
// una identidad distinta del mismo producto sin variante; nunca se agregan.
type StockIdentity struct {
	BusinessID ID
	OutletID   ID
	ProductID  ID
	VariantID  *ID
}

// Availability resultado del cálculo de disponibilidad para una identidad.
type Availability struct {
	OnHand             decimal.Decimal
	Committed          decimal.Decimal
	AvailableToReserve decimal.Decimal
}
