package domain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/danielgtaylor/huma/v2"
)

// Amount is an arbitrary-precision non-negative integer. It serializes as a
// decimal string at every boundary so large token amounts never pass through
// floating point.
type Amount struct {
	i *big.Int
}

func NewAmount(i *big.Int) Amount {
	if i == nil {
		return Amount{}
	}
	return Amount{i: new(big.Int).Set(i)}
}

func AmountFromInt64(v int64) Amount {
	return Amount{i: big.NewInt(v)}
}

func AmountFromString(s string) (Amount, error) {
	if s == "" {
		return Amount{}, nil
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	if i.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount %q is negative", s)
	}
	return Amount{i: i}, nil
}

// Int returns the underlying integer, never nil. The caller must not mutate it.
func (a Amount) Int() *big.Int {
	if a.i == nil {
		return big.NewInt(0)
	}
	return a.i
}

func (a Amount) IsZero() bool {
	return a.i == nil || a.i.Sign() == 0
}

func (a Amount) Cmp(b Amount) int {
	return a.Int().Cmp(b.Int())
}

func (a Amount) Add(b Amount) Amount {
	return Amount{i: new(big.Int).Add(a.Int(), b.Int())}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{i: new(big.Int).Sub(a.Int(), b.Int())}
}

func (a Amount) String() string {
	return a.Int().String()
}

// Schema reports the wire form, a decimal string, so request validation
// matches what UnmarshalJSON accepts.
func (Amount) Schema(r huma.Registry) *huma.Schema {
	return &huma.Schema{Type: huma.TypeString, Pattern: `^[0-9]*$`}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Tolerate bare JSON numbers from hand-written fixtures.
		var n json.Number
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return err
		}
		s = n.String()
	}
	parsed, err := AmountFromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
