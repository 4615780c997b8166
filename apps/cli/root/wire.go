package root

import (
	"github.com/zenGate-Global/palmyra-qbsync/apps/cli/cmd/auth"
	"github.com/zenGate-Global/palmyra-qbsync/apps/cli/cmd/bootstrap"
	"github.com/zenGate-Global/palmyra-qbsync/apps/cli/cmd/company"
	synccmd "github.com/zenGate-Global/palmyra-qbsync/apps/cli/cmd/sync"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(company.Command())
	Root().AddCommand(synccmd.Command())
}
