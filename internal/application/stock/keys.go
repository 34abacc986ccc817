package stock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
)

// KeyPair par de valores que se pasan a las operaciones de stock:
// Idem es la clave de idempotencia, Ref la referencia legible.
type KeyPair struct {
	Idem string
	Ref  string
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9:_\-.]`)

// sanitizeKeyPart normaliza un fragmento de clave (minúsculas, sin espacios ni
// caracteres fuera del alfabeto seguro).
func sanitizeKeyPart(part string) string {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(part), " ", "-"))
	return unsafeKeyChars.ReplaceAllString(s, "")
}

// keyItem proyección de una línea con solo los campos que definen identidad y
// cantidad. El orden de los campos fija la forma canónica del JSON.
type keyItem struct {
	Qty       int64  `json:"qty"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

// normalizeKeyItems proyecta y ordena las líneas por (producto, variante) para
// que el orden del carrito no afecte el hash: dos peticiones lógicamente
// idénticas colisionan aunque el cliente mande las líneas desordenadas.
func normalizeKeyItems(items []entity.HoldItem) []keyItem {
	out := make([]keyItem, 0, len(items))
	for _, it := range items {
		k := keyItem{Qty: it.Qty, ProductID: it.ProductID.String()}
		if it.VariantID != nil {
			k.VariantID = it.VariantID.String()
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].VariantID < out[j].VariantID
	})
	return out
}

func shortHash(payload any) string {
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:24]
}

type placeHoldPayload struct {
	Op      string    `json:"op"`
	Biz     string    `json:"biz"`
	Out     string    `json:"out"`
	Cart    string    `json:"cart"`
	Items   []keyItem `json:"items"`
	Cashier string    `json:"cashier,omitempty"`
}

// KeysForPlaceHold construye la clave de idempotencia de una reserva como hash
// determinista del payload normalizado e independiente del orden.
func KeysForPlaceHold(businessID, outletID, cashierID entity.ID, cartID string, items []entity.HoldItem) KeyPair {
	biz := sanitizeKeyPart(businessID.String())
	out := sanitizeKeyPart(outletID.String())
	cart := sanitizeKeyPart(cartID)
	payload := placeHoldPayload{
		Op:    "stock_hold",
		Biz:   biz,
		Out:   out,
		Cart:  cart,
		Items: normalizeKeyItems(items),
	}
	if !cashierID.IsZero() {
		payload.Cashier = sanitizeKeyPart(cashierID.String())
	}
	h := shortHash(payload)
	return KeyPair{
		Idem: "stock-hold:" + biz + ":" + out + ":" + cart + ":" + h,
		Ref:  "stock-hold:" + biz + ":" + out + ":" + cart,
	}
}

// KeysForCapture clave determinista de captura; incluye sale_id si existe.
func KeysForCapture(businessID entity.ID, holdID string, saleID *entity.ID) KeyPair {
	biz := sanitizeKeyPart(businessID.String())
	hid := sanitizeKeyPart(holdID)
	k := "stock-cap:" + biz + ":" + hid
	if saleID != nil {
		k += ":" + sanitizeKeyPart(saleID.String())
	}
	return KeyPair{Idem: k, Ref: k}
}

// KeysForRelease clave determinista de liberación manual.
func KeysForRelease(businessID entity.ID, holdID, reason string) KeyPair {
	biz := sanitizeKeyPart(businessID.String())
	hid := sanitizeKeyPart(holdID)
	k := "stock-rel:" + biz + ":" + hid
	if reason != "" {
		k += ":" + sanitizeKeyPart(reason)
	}
	return KeyPair{Idem: k, Ref: k}
}

// KeysForExpiredRelease clave determinista del sweep, derivada de
// (negocio, hold): un sweep concurrente, una liberación manual o una captura
// compitiendo por el mismo hold no pueden transicionarlo dos veces.
func KeysForExpiredRelease(businessID entity.ID, holdID string) KeyPair {
	biz := sanitizeKeyPart(businessID.String())
	hid := sanitizeKeyPart(holdID)
	k := "stock-rel-exp:" + biz + ":" + hid
	return KeyPair{Idem: k, Ref: k}
}
