package config

import "fmt"

func errUnsupported(v string) error {
	return fmt.Errorf("unsupported value %q", v)
}
