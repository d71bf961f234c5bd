package main

import (
	"errors"
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/guard.go/pkg/env"
	fx "github.com/robotalks/guard.go/pkg/framework"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf, err := env.Load(flag.CommandLine)
	if err != nil {
		glog.Exit(err)
	}
	e, err := conf.NewEnv()
	if err != nil {
		glog.Exit(err)
	}
	defer e.Close()

	runner := fx.NewRunner().HandleSignals()
	if err := runner.Go(e).Wait(); err != nil {
		var failed *fx.AggregatedError
		if errors.As(err, &failed) {
			glog.Errorf("stopped with failures in %v", failed.Failed())
		}
		glog.Error(err)
	}
}
