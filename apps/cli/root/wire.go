package root

import (
	casecmd "github.com/mediamatex/lexarbitra-vue/apps/cli/cmd/casecmd"
	kascmd "github.com/mediamatex/lexarbitra-vue/apps/cli/cmd/kascmd"
)

func init() {
	Root().AddCommand(casecmd.Command())
	Root().AddCommand(kascmd.Command())
}
