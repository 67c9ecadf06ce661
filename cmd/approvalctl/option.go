package main

// Options is the root command that groups sub-commands. The struct tags are
// interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Config string   `short:"f" long:"config" description:"config YAML path"`
	Serve  ServeCmd `command:"serve" description:"Run the escalation scheduler until interrupted"`
	Sweep  SweepCmd `command:"sweep" description:"Run one escalation sweep and exit"`
	Purge  PurgeCmd `command:"purge" description:"Delete closed requests past their retention"`
	Demo   DemoCmd  `command:"demo" description:"Walk a routed request through approval and escalation in memory"`
}
