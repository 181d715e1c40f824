package prompt

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/manifoldco/promptui"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/id"
)

// Prompter asks the operator for input.
type Prompter interface {
	Select(label string, items []string) (int, error)
	Input(label, def string, validate func(string) error) (string, error)
	Confirm(label string, def bool) (bool, error)
}

// Terminal prompts on a TTY with promptui.
type Terminal struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

const pageSize = 12

func (t Terminal) Select(label string, items []string) (int, error) {
	s := promptui.Select{
		Label:  label,
		Items:  items,
		Size:   pageSize,
		Stdin:  t.Stdin,
		Stdout: t.Stdout,
		Searcher: func(input string, index int) bool {
			return strings.Contains(strings.ToLower(items[index]), strings.ToLower(input))
		},
	}
	i, _, err := s.Run()
	return i, interrupted(err)
}

func (t Terminal) Input(label, def string, validate func(string) error) (string, error) {
	p := promptui.Prompt{
		Label:     label,
		Default:   def,
		AllowEdit: def != "",
		Stdin:     t.Stdin,
		Stdout:    t.Stdout,
	}
	if validate != nil {
		p.Validate = promptui.ValidateFunc(validate)
	}
	v, err := p.Run()
	return strings.TrimSpace(v), interrupted(err)
}

func (t Terminal) Confirm(label string, def bool) (bool, error) {
	p := promptui.Prompt{Label: label, IsConfirm: true, Stdin: t.Stdin, Stdout: t.Stdout}
	if def {
		p.Default = "y"
	}
	v, err := p.Run()
	if errors.Is(err, promptui.ErrAbort) {
		return false, nil
	}
	if err != nil {
		return false, interrupted(err)
	}
	if v == "" {
		return def, nil
	}
	return strings.EqualFold(v, "y") || strings.EqualFold(v, "yes"), nil
}

func interrupted(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return clierr.Wrap(clierr.CodeDeclined, "prompt cancelled", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "prompt failed", err)
}

// Address asks for a hex address. A non-zero def is offered as default.
func Address(p Prompter, label string, def common.Address) (common.Address, error) {
	d := ""
	if def != (common.Address{}) {
		d = def.Hex()
	}
	v, err := p.Input(label, d, ValidateAddress)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(v), nil
}

func ValidateAddress(v string) error {
	if !common.IsHexAddress(strings.TrimSpace(v)) {
		return errors.New("please enter a valid address")
	}
	return nil
}

// Amount asks for a decimal amount of token, bounded by max when non-nil.
func Amount(p Prompter, label string, token chain.Token, def, max *big.Int) (*big.Int, error) {
	d := ""
	if def != nil {
		d = token.Format(def)
	}
	validate := func(v string) error {
		_, err := id.ParseUnitsMax(v, int(token.Decimals), max)
		return plain(err)
	}
	v, err := p.Input(label, d, validate)
	if err != nil {
		return nil, err
	}
	return id.ParseUnitsMax(v, int(token.Decimals), max)
}

// Int asks for an integer in [min, max].
func Int(p Prompter, label string, def, min, max int64) (int64, error) {
	validate := func(v string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return errors.New("please enter a whole number")
		}
		if n < min || n > max {
			return fmt.Errorf("please enter a value between %d and %d", min, max)
		}
		return nil
	}
	v, err := p.Input(label, strconv.FormatInt(def, 10), validate)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
}

// Text asks for a non-empty string.
func Text(p Prompter, label, def string) (string, error) {
	return p.Input(label, def, func(v string) error {
		if strings.TrimSpace(v) == "" {
			return errors.New("a value is required")
		}
		return nil
	})
}

// plain strips the error code so promptui shows just the message.
func plain(err error) error {
	if e, ok := clierr.As(err); ok {
		return errors.New(e.Message)
	}
	return err
}
