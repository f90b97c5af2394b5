package entities

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// InfectionLevel is the discrete severity of a leaf infection.
type InfectionLevel int

const (
	LevelNone InfectionLevel = iota
	LevelPreventive
	LevelTargeted
	LevelIntensive
)

// Levels lists every level in ascending severity.
var Levels = []InfectionLevel{LevelNone, LevelPreventive, LevelTargeted, LevelIntensive}

func (l InfectionLevel) String() string {
	switch l {
	case LevelPreventive:
		return "Preventive"
	case LevelTargeted:
		return "Targeted"
	case LevelIntensive:
		return "Intensive"
	default:
		return "None"
	}
}

// ParseInfectionLevel accepts the names produced by String.
func ParseInfectionLevel(s string) (InfectionLevel, error) {
	for _, l := range Levels {
		if l.String() == s {
			return l, nil
		}
	}
	return LevelNone, fmt.Errorf("unknown infection level %q", s)
}

func (l InfectionLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *InfectionLevel) UnmarshalText(b []byte) error {
	v, err := ParseInfectionLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// MarshalJSON keeps the level readable in stored documents and commands.
func (l InfectionLevel) MarshalJSON() ([]byte, error) { return json.Marshal(l.String()) }

func (l *InfectionLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return l.UnmarshalText([]byte(s))
}

// MarshalBSONValue stores the level by name, like the JSON form.
func (l InfectionLevel) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(l.String())
}

func (l *InfectionLevel) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	s, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
	if !ok {
		return fmt.Errorf("infection level: expected a string, got bson %s", t)
	}
	return l.UnmarshalText([]byte(s))
}
