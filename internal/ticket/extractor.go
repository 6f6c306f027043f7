package ticket

import (
	"strconv"
	"strings"
)

// fieldAliases maps normalized OCR keys onto structured fields. OCR output
// from different issuers labels the same field inconsistently, so each field
// accepts several spellings.
var fieldAliases = map[string]string{
	"pcn number":            "pcn",
	"pcn":                   "pcn",
	"pcn no":                "pcn",
	"penalty charge notice": "pcn",
	"notice number":         "pcn",
	"reference":             "pcn",
	"issuer":                "issuer",
	"issuing authority":     "issuer",
	"authority":             "issuer",
	"council":               "issuer",
	"contravention":         "code",
	"contravention code":    "code",
	"code":                  "code",
	"location":              "location",
	"place":                 "location",
	"street":                "location",
	"issue date":            "issue_date",
	"date of issue":         "issue_date",
	"date of notice":        "issue_date",
	"date":                  "issue_date",
	"vehicle registration":  "vehicle_reg",
	"registration":          "vehicle_reg",
	"registration mark":     "vehicle_reg",
	"vrm":                   "vehicle_reg",
	"amount due":            "amount",
	"amount":                "amount",
	"penalty amount":        "amount",
	"charge":                "amount",
	"discount deadline":     "discount",
	"discount date":         "discount",
	"pay by":                "discount",
	"reduced amount until":  "discount",
	"notes":                 "notes",
	"observations":          "notes",
}

// ExtractFacts derives a Facts record from raw OCR text. Each line matching a
// "key: value" shape is normalized and routed to a structured field when the
// key is recognized, otherwise preserved in the Unrecognized bag. Lines with
// no separator contribute nothing structured but remain available through
// RawText. Empty input is not an error: it yields an all-unset record.
func ExtractFacts(text string) Facts {
	facts := Facts{RawText: text}
	if strings.TrimSpace(text) == "" {
		return facts
	}
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := splitLine(line)
		if !ok {
			continue
		}
		switch fieldAliases[key] {
		case "pcn":
			facts.PCNNumber = value
		case "issuer":
			facts.Issuer = value
		case "code":
			facts.ContraventionCode = value
		case "location":
			facts.Location = value
		case "issue_date":
			facts.IssueDate = value
		case "vehicle_reg":
			facts.VehicleReg = strings.ToUpper(strings.ReplaceAll(value, " ", ""))
		case "amount":
			if pennies, ok := parseAmount(value); ok {
				facts.AmountDuePennies = pennies
			} else {
				facts.addUnrecognized(key, value)
			}
		case "discount":
			facts.DiscountDeadline = value
		case "notes":
			facts.Notes = value
		default:
			facts.addUnrecognized(key, value)
		}
	}
	return facts
}

func (f *Facts) addUnrecognized(key, value string) {
	if f.Unrecognized == nil {
		f.Unrecognized = make(map[string]string)
	}
	f.Unrecognized[key] = value
}

func splitLine(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = normalizeKey(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}

func normalizeKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", " ")
	return strings.Join(strings.Fields(key), " ")
}

// parseAmount converts an OCR amount string to pennies. Values carrying a
// decimal point are pounds ("£65.00" -> 6500); bare integers are pennies.
func parseAmount(value string) (int, bool) {
	cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "£"))
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, false
	}
	if strings.Contains(cleaned, ".") {
		pounds, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || pounds < 0 {
			return 0, false
		}
		return int(pounds*100 + 0.5), true
	}
	pennies, err := strconv.Atoi(cleaned)
	if err != nil || pennies < 0 {
		return 0, false
	}
	return pennies, true
}
