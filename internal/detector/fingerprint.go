package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"fare-deal-alerts/internal/model"
)

const dateLayout = "2006-01-02"

// Fingerprint derives the deal identity from exactly five fields: origin,
// destination, outbound date, return date, and price. Carrier is
// informational and deliberately excluded. The price is canonicalised to
// two decimal places so 150 and 150.00 fingerprint identically.
func Fingerprint(obs model.FareObservation) string {
	key := strings.Join([]string{
		obs.Origin,
		obs.Destination,
		obs.OutboundDate.Format(dateLayout),
		obs.ReturnDate.Format(dateLayout),
		obs.Price.StringFixed(2),
	}, "|")

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
