package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/mandala-pos/terminal/internal/domain/product"
	"github.com/mandala-pos/terminal/internal/domain/staff"
)

// staffEntry is a member as listed in the seed file, with a clear-text PIN.
type staffEntry struct {
	ID   string
	Name string
	Role staff.Role
	PIN  string
}

// catalog is the content of a seed file.
type catalog struct {
	Products []product.Product
	Staff    []staffEntry
}

// members hashes every PIN with pepper.
func (c catalog) members(pepper []byte) []staff.Member {
	out := make([]staff.Member, 0, len(c.Staff))
	for _, s := range c.Staff {
		out = append(out, staff.Member{
			ID:      s.ID,
			Name:    s.Name,
			Role:    s.Role,
			PinHash: staff.HashPIN(pepper, s.PIN),
		})
	}
	return out
}

// openCatalog reads a seed file. Files ending in .gz are decompressed.
func openCatalog(path string) (*catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return parseCatalog(r)
}

func parseCatalog(r io.Reader) (*catalog, error) {
	var c catalog
	d := jx.Decode(r, 4096)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return errors.Wrapf(err, "product %d", len(c.Products))
				}
				c.Products = append(c.Products, p)
				return nil
			})
		case "staff":
			return d.Arr(func(d *jx.Decoder) error {
				s, err := decodeStaff(d)
				if err != nil {
					return errors.Wrapf(err, "staff %d", len(c.Staff))
				}
				c.Staff = append(c.Staff, s)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "image":
			p.ImageURL, err = d.Str()
		case "price":
			p.Price, err = decodePrice(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

// decodePrice accepts both "9.50" and 9.5.
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	default:
		return decimal.Decimal{}, errors.New("price must be a string or a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "price %q", raw)
	}
	return v, nil
}

func decodeStaff(d *jx.Decoder) (staffEntry, error) {
	var s staffEntry
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			s.ID, err = d.Str()
		case "name":
			s.Name, err = d.Str()
		case "role":
			var role string
			role, err = d.Str()
			s.Role = staff.Role(role)
		case "pin":
			s.PIN, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return s, err
}

func (c catalog) validate() error {
	seen := make(map[string]struct{}, len(c.Products))
	for _, p := range c.Products {
		if p.ID == "" || p.Name == "" {
			return errors.Errorf("product %q: id and name are required", p.ID)
		}
		if p.Price.IsNegative() {
			return errors.Errorf("product %q: negative price", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return errors.Errorf("product %q: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	pins := make(map[string]string, len(c.Staff))
	for _, s := range c.Staff {
		switch s.Role {
		case staff.RoleWaitress, staff.RoleBartender, staff.RoleManager:
		default:
			return errors.Errorf("staff %q: unknown role %q", s.ID, s.Role)
		}
		if s.ID == "" || !numeric(s.PIN) {
			return errors.Errorf("staff %q: id and a numeric PIN are required", s.ID)
		}
		if other, dup := pins[s.PIN]; dup {
			return errors.Errorf("staff %q: PIN already used by %q", s.ID, other)
		}
		pins[s.PIN] = s.ID
	}
	return nil
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
