package runner

import (
	"github.com/meshutils/peerpick/pkg/version"
	"github.com/projectdiscovery/gologger"
	updateutils "github.com/projectdiscovery/utils/update"
)

var banner = `
                          _     __
   ___  ___ ___ ___ ___  (_)___/ /__
  / _ \/ -_) -_) __/ _ \/ / __/  '_/
 / .__/\__/\__/_/ / .__/_/\__/_/\_\
/_/              /_/              ` + version.GetVersion() + `
`

// showBanner is used to show the banner to the user
func showBanner() {
	gologger.Print().Msgf("%s\n", banner)
}

// GetUpdateCallback returns a callback function that updates peerpick
func GetUpdateCallback() func() {
	return func() {
		showBanner()
		updateutils.GetUpdateToolCallback("peerpick", version.GetVersion())()
	}
}
