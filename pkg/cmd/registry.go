// Package cmd provides common initialization functions for the relay
// command-line binaries.
package cmd

import (
	"log/slog"

	"github.com/quivela/relay/pkg/actions/httpcall"
	"github.com/quivela/relay/pkg/actions/logaction"
	"github.com/quivela/relay/pkg/actions/sendemail"
	"github.com/quivela/relay/pkg/actions/sendsms"
	"github.com/quivela/relay/pkg/actions/updaterecord"
	"github.com/quivela/relay/pkg/registry"
)

// Senders groups the external gateways the communication actions call out
// to. The embedding application supplies real implementations; nil fields
// fall back to log-only stubs.
type Senders struct {
	Mailer  sendemail.Mailer
	Texter  sendsms.Texter
	Updater updaterecord.RecordUpdater
}

func NewRegistry(logger *slog.Logger, senders Senders) *registry.Registry {
	if senders.Mailer == nil {
		senders.Mailer = &logMailer{logger: logger}
	}

	if senders.Texter == nil {
		senders.Texter = &logTexter{logger: logger}
	}

	if senders.Updater == nil {
		senders.Updater = &logUpdater{logger: logger}
	}

	reg := registry.NewRegistry(logger)

	reg.RegisterAction(httpcall.NewActionFactory())
	reg.RegisterAction(logaction.NewActionFactory())
	reg.RegisterAction(sendemail.NewActionFactory(senders.Mailer))
	reg.RegisterAction(sendsms.NewActionFactory(senders.Texter))
	reg.RegisterAction(updaterecord.NewActionFactory(senders.Updater))

	return reg
}
