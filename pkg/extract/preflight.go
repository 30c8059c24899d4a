package extract

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func preflightConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.Cmd = model.VALIDATE
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Validate runs pdfcpu's relaxed validation over buf. Documents pdfcpu cannot read,
// including encrypted ones it cannot open without a password, fail with ErrDecode.
func Validate(buf []byte) error {
	err := safely(func() error {
		return api.Validate(bytes.NewReader(buf), preflightConfig())
	})
	if err != nil {
		return fmt.Errorf("%w: validation failed: %w", ErrDecode, err)
	}
	return nil
}

// CountPages returns the page count as pdfcpu sees it, without extracting any text.
func CountPages(buf []byte) (int, error) {
	var n int
	err := safely(func() error {
		var err error
		n, err = api.PageCount(bytes.NewReader(buf), preflightConfig())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return n, nil
}
