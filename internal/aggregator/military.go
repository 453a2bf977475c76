package aggregator

import (
	"strings"

	"github.com/skywatch-data/skywatch/internal/feeds"
)

// Category buckets military airframes by mission role.
type Category string

const (
	CategoryTanker     Category = "tanker"
	CategoryAWACS      Category = "awacs"
	CategoryISR        Category = "isr"
	CategoryTransport  Category = "transport"
	CategoryFighter    Category = "fighter"
	CategoryHelicopter Category = "helicopter"
	CategoryTrainer    Category = "trainer"
	CategoryOther      Category = "other"
)

// Classification is the output of the military rule engine.
type Classification struct {
	IsMilitary bool
	Category   Category
	Country    string
}

// hexRange is an inclusive ICAO allocation block.
type hexRange struct {
	lo, hi  uint32
	country string
}

// Military ICAO allocation blocks. These correct upstream flags in both
// directions: a hex inside a block is military even when the feed says
// otherwise, and type/operator rules below catch the rest.
var militaryHexRanges = []hexRange{
	{0xADF7C8, 0xAFFFFF, "US"},
	{0x43C000, 0x43CFFF, "UK"},
	{0x3AA000, 0x3AFFFF, "FR"},
	{0x3B7000, 0x3BFFFF, "FR"},
	{0x3EA000, 0x3EBFFF, "DE"},
	{0x3F4000, 0x3FBFFF, "DE"},
	{0x33FC00, 0x33FFFF, "IT"},
	{0x34F000, 0x34FFFF, "ES"},
	{0x7CF800, 0x7CFAFF, "AU"},
	{0xC20000, 0xC3FFFF, "CA"},
	{0x710258, 0x7105FF, "SA"},
	{0x738A00, 0x738AFF, "IL"},
	{0x508000, 0x50FFFF, "RU"},
}

// typeCategories maps ICAO type designators to mission categories. The list
// covers the airframes the detectors care about; anything else military
// falls back to "other".
var typeCategories = map[string]Category{
	// Tankers
	"KC135": CategoryTanker, "K35R": CategoryTanker, "KC10": CategoryTanker,
	"KC46": CategoryTanker, "A332": CategoryTanker, "A339": CategoryTanker,
	"VC10": CategoryTanker, "MRTT": CategoryTanker,
	// AWACS / AEW
	"E3TF": CategoryAWACS, "E3CF": CategoryAWACS, "E2": CategoryAWACS,
	"E3": CategoryAWACS, "E7": CategoryAWACS, "E767": CategoryAWACS,
	// ISR
	"RC135": CategoryISR, "R135": CategoryISR, "U2": CategoryISR,
	"P8": CategoryISR, "P3": CategoryISR, "E8": CategoryISR,
	"EP3E": CategoryISR, "RQ4": CategoryISR, "Q4": CategoryISR,
	"MQ9": CategoryISR, "M339": CategoryISR, "GLEX": CategoryISR,
	// Transports
	"C17": CategoryTransport, "C130": CategoryTransport, "C30J": CategoryTransport,
	"C5M": CategoryTransport, "C5": CategoryTransport, "A400": CategoryTransport,
	"A124": CategoryTransport, "C2": CategoryTransport, "KC30": CategoryTanker,
	// Fighters
	"F16": CategoryFighter, "F15": CategoryFighter, "F18": CategoryFighter,
	"F18S": CategoryFighter, "FA18": CategoryFighter, "F35": CategoryFighter,
	"F35A": CategoryFighter, "F22": CategoryFighter, "F4": CategoryFighter,
	"EUFI": CategoryFighter, "TYPH": CategoryFighter, "RFAL": CategoryFighter,
	"MG29": CategoryFighter, "SU27": CategoryFighter, "SU30": CategoryFighter,
	"SU35": CategoryFighter, "TOR": CategoryFighter, "HAR": CategoryFighter,
	// Helicopters
	"H60": CategoryHelicopter, "UH60": CategoryHelicopter, "S70": CategoryHelicopter,
	"CH47": CategoryHelicopter, "H47": CategoryHelicopter, "AH64": CategoryHelicopter,
	"H64": CategoryHelicopter, "EC45": CategoryHelicopter, "NH90": CategoryHelicopter,
	// Trainers
	"T6": CategoryTrainer, "T38": CategoryTrainer, "TEX2": CategoryTrainer,
	"HAWK": CategoryTrainer, "PC21": CategoryTrainer, "M346": CategoryTrainer,
}

// operatorKeywords flag operators as military by name.
var operatorKeywords = []string{
	"AIR FORCE", "NAVY", "ARMY", "MARINES", "COAST GUARD",
	"LUFTWAFFE", "ARMEE DE L'AIR", "RAF", "USAF", "NATO",
	"MINISTRY OF DEFENCE", "DEPARTMENT OF DEFENSE",
}

// militaryCallsignPrefixes catch military flights operating with civilian
// hex allocations.
var militaryCallsignPrefixes = []string{
	"RCH", "REACH", "DUKE", "TREK", "ROGUE", "HOBO", "NATO",
	"LAGR", "JAKE", "PYTHON", "VIPER", "HAWK", "SNTRY", "REDEYE",
}

// hexCountries maps civil ICAO blocks to countries for context tagging.
var hexCountries = []hexRange{
	{0xA00000, 0xAFFFFF, "US"},
	{0x400000, 0x43FFFF, "UK"},
	{0x380000, 0x3BFFFF, "FR"},
	{0x3C0000, 0x3FFFFF, "DE"},
	{0x300000, 0x33FFFF, "IT"},
	{0x340000, 0x37FFFF, "ES"},
	{0x700000, 0x717FFF, "SA"},
	{0x738000, 0x73FFFF, "IL"},
	{0x500000, 0x5FFFFF, "RU"},
	{0x780000, 0x7BFFFF, "CN"},
	{0x7C0000, 0x7FFFFF, "AU"},
	{0xC00000, 0xC3FFFF, "CA"},
}

// Classify runs the full rule set over a merged record. The military flag
// is recomputed unconditionally; upstream mil flags only contribute as one
// more signal, so both missing flags and upstream false positives get
// corrected.
func Classify(rec *feeds.Record) Classification {
	hexVal := parseHex(rec.Hex)

	var c Classification
	c.Country = countryForHex(hexVal)

	// Hex-range rule.
	for _, r := range militaryHexRanges {
		if hexVal >= r.lo && hexVal <= r.hi {
			c.IsMilitary = true
			c.Country = r.country
			break
		}
	}

	// Type rule.
	typeCode := ""
	if rec.Type != nil {
		typeCode = strings.ToUpper(strings.TrimSpace(*rec.Type))
	}
	if cat, ok := typeCategories[typeCode]; ok {
		c.IsMilitary = true
		c.Category = cat
	}

	// Operator rule.
	if rec.Operator != nil {
		op := strings.ToUpper(*rec.Operator)
		for _, kw := range operatorKeywords {
			if strings.Contains(op, kw) {
				c.IsMilitary = true
				break
			}
		}
	}

	// Callsign prefix rule.
	if !c.IsMilitary && rec.Flight != nil {
		cs := strings.ToUpper(strings.TrimSpace(*rec.Flight))
		for _, prefix := range militaryCallsignPrefixes {
			if strings.HasPrefix(cs, prefix) {
				c.IsMilitary = true
				break
			}
		}
	}

	if c.IsMilitary && c.Category == "" {
		c.Category = CategoryOther
	}
	return c
}

// CategoryForType returns the mission category for an ICAO type code, or
// CategoryOther when unknown.
func CategoryForType(typeCode string) Category {
	if cat, ok := typeCategories[strings.ToUpper(strings.TrimSpace(typeCode))]; ok {
		return cat
	}
	return CategoryOther
}

func parseHex(hex string) uint32 {
	var v uint32
	for _, ch := range hex {
		var d uint32
		switch {
		case ch >= '0' && ch <= '9':
			d = uint32(ch - '0')
		case ch >= 'A' && ch <= 'F':
			d = uint32(ch-'A') + 10
		case ch >= 'a' && ch <= 'f':
			d = uint32(ch-'a') + 10
		default:
			return 0
		}
		v = v<<4 | d
	}
	return v
}

func countryForHex(hexVal uint32) string {
	for _, r := range hexCountries {
		if hexVal >= r.lo && hexVal <= r.hi {
			return r.country
		}
	}
	return ""
}
