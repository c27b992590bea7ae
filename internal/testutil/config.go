package testutil

import (
	"testing"

	"github.com/spf13/viper"
)

// ResetViper clears the global viper instance now and after the test.
func ResetViper(t *testing.T) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
}

// SetViperValue sets a global viper key for the duration of the test.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	old, had := viper.Get(key), viper.IsSet(key)
	viper.Set(key, value)

	t.Cleanup(func() {
		// viper has no Unset; an unset key is restored as nil.
		if had {
			viper.Set(key, old)
		} else {
			viper.Set(key, nil)
		}
	})
}

// UseSandboxConfig points every writable setting at env so commands under
// test never touch the real working directory.
func UseSandboxConfig(t *testing.T, env *TestEnv) {
	t.Helper()

	ResetViper(t)
	viper.Set("download.dir", env.Path("downloads"))
	viper.Set("history.dbfile", env.Path("folio.db"))
	viper.Set("http.rate", 0)
	viper.Set("http.retries", 0)
}
