package main

// Options is the root command. The struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Config string `short:"f" long:"config" description:"config JSON path (default $PROPAGENT_CONFIG, then ~/.config/propagent/config.json)"`

	Run     RunCmd     `command:"run" description:"Run an agent persona and record its decision"`
	Approve ApproveCmd `command:"approve" description:"Approve a pending decision"`
	Reject  RejectCmd  `command:"reject" description:"Reject a pending decision"`
	Show    ShowCmd    `command:"show" description:"Print a decision and its action record"`
	Pending PendingCmd `command:"pending" description:"List decisions awaiting review"`
}

func newOptions(c *cli) *Options {
	o := &Options{}
	o.Run.cli = c
	o.Approve.cli = c
	o.Reject.cli = c
	o.Show.cli = c
	o.Pending.cli = c
	return o
}

// RunCmd starts one run. Exactly one of --message, --event or --scheduled
// selects the trigger.
type RunCmd struct {
	Persona   string `short:"p" long:"persona" required:"true" description:"agent persona or id"`
	Scope     string `short:"s" long:"scope" required:"true" description:"property id the run is scoped to"`
	Actor     string `short:"a" long:"actor" description:"user the run acts for"`
	Message   string `short:"m" long:"message" description:"chat message text"`
	Event     string `long:"event" description:"event name"`
	Scheduled string `long:"scheduled" description:"scheduled job name"`
	Payload   string `long:"payload" description:"trigger payload as a JSON object"`
	History   string `long:"history" description:"prior conversation turns as a JSON array of {role, content}"`
	Quiet     bool   `short:"q" long:"quiet" description:"do not print progress"`

	cli *cli
}

type ApproveCmd struct {
	ID    string `long:"id" required:"true" description:"decision id"`
	Actor string `long:"actor" required:"true" description:"reviewer id"`

	cli *cli
}

type RejectCmd struct {
	ID     string `long:"id" required:"true" description:"decision id"`
	Actor  string `long:"actor" required:"true" description:"reviewer id"`
	Reason string `long:"reason" description:"why the decision is rejected"`

	cli *cli
}

type ShowCmd struct {
	ID string `long:"id" required:"true" description:"decision id"`

	cli *cli
}

type PendingCmd struct {
	Limit int `short:"n" long:"limit" default:"20" description:"maximum decisions to list"`

	cli *cli
}
