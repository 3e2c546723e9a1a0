package types

import (
	"fmt"
	"strings"
)

// Zone is a geographic sub-market of the day-ahead market. The value is the
// code used as element name in the price publications.
type Zone string

const (
	// ZoneNone disables zonal price collection.
	ZoneNone Zone = ""

	ZoneCALA Zone = "CALA"
	ZoneCNOR Zone = "CNOR"
	ZoneCSUD Zone = "CSUD"
	ZoneNORD Zone = "NORD"
	ZoneSARD Zone = "SARD"
	ZoneSICI Zone = "SICI"
	ZoneSUD  Zone = "SUD"
	ZoneAUST Zone = "AUST"
	ZoneCOAC Zone = "COAC"
	ZoneCORS Zone = "CORS"
	ZoneFRAN Zone = "FRAN"
	ZoneGREC Zone = "GREC"
	ZoneSLOV Zone = "SLOV"
	ZoneSVIZ Zone = "SVIZ"
	ZoneMALT Zone = "MALT"
	ZoneMONT Zone = "MONT"
	ZoneXAUS Zone = "XAUS"
	ZoneXFRA Zone = "XFRA"
	ZoneXGRE Zone = "XGRE"
	ZoneBSP  Zone = "BSP"
	ZoneCOUP Zone = "COUP"

	// DefaultZone is used when a configured zone is not recognized.
	DefaultZone = ZoneNORD
)

var zoneNames = map[Zone]string{
	ZoneCALA: "Calabria",
	ZoneCNOR: "Centro nord",
	ZoneCSUD: "Centro sud",
	ZoneNORD: "Nord",
	ZoneSARD: "Sardegna",
	ZoneSICI: "Sicilia",
	ZoneSUD:  "Sud",
	ZoneAUST: "Austria",
	ZoneCOAC: "Corsica AC",
	ZoneCORS: "Corsica",
	ZoneFRAN: "Francia",
	ZoneGREC: "Grecia",
	ZoneSLOV: "Slovenia",
	ZoneSVIZ: "Svizzera",
	ZoneMALT: "Malta",
	ZoneMONT: "Montenegro",
	ZoneXAUS: "Austria (coupling)",
	ZoneXFRA: "Francia (coupling)",
	ZoneXGRE: "Grecia (coupling)",
	ZoneBSP:  "Slovenia (coupling)",
	ZoneCOUP: "Coupling",
}

// Zones returns every selectable zone, excluding ZoneNone.
func Zones() []Zone {
	return []Zone{
		ZoneCALA, ZoneCNOR, ZoneCSUD, ZoneNORD, ZoneSARD, ZoneSICI, ZoneSUD,
		ZoneAUST, ZoneCOAC, ZoneCORS, ZoneFRAN, ZoneGREC, ZoneSLOV, ZoneSVIZ,
		ZoneMALT, ZoneMONT, ZoneXAUS, ZoneXFRA, ZoneXGRE, ZoneBSP, ZoneCOUP,
	}
}

// Valid reports whether z is ZoneNone or a known zone.
func (z Zone) Valid() bool {
	if z == ZoneNone {
		return true
	}
	_, ok := zoneNames[z]
	return ok
}

// Name returns the human readable name of the zone.
func (z Zone) Name() string {
	if z == ZoneNone {
		return "none"
	}
	if n, ok := zoneNames[z]; ok {
		return n
	}
	return string(z)
}

// ParseZone parses a zone code. The empty string and "none" yield ZoneNone.
func ParseZone(s string) (Zone, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return ZoneNone, nil
	}
	z := Zone(strings.ToUpper(s))
	if _, ok := zoneNames[z]; !ok {
		return ZoneNone, fmt.Errorf("unknown zone: %q", s)
	}
	return z, nil
}

// ZoneOrDefault parses s and falls back to DefaultZone when it is not a known
// zone. The returned diagnostic is nil when no fallback happened.
func ZoneOrDefault(s string) (Zone, *Diagnostic) {
	z, err := ParseZone(s)
	if err == nil {
		return z, nil
	}
	return DefaultZone, &Diagnostic{
		Code:    DiagnosticUnknownZone,
		Message: fmt.Sprintf("zone %q is not valid, using %s (%s)", s, DefaultZone, DefaultZone.Name()),
	}
}

// DiagnosticCode identifies a recoverable anomaly surfaced to users.
type DiagnosticCode string

const (
	DiagnosticUnknownZone DiagnosticCode = "unknownZone"
)

// Diagnostic describes a recoverable configuration anomaly.
type Diagnostic struct {
	Code    DiagnosticCode `json:"code"`
	Message string         `json:"message"`
}
