package sea

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli"

	"github.com/xhdnoah/sea/socket"
)

// ServeCommand returns `cli.Command` that builds a `Server` through the
// passed constructor and blocks in `Run()` for the process lifetime.
// The same command runs in master and worker processes; the role is
// decided inside Run.
func ServeCommand(build func(c *cli.Context) (*Server, error)) cli.Command {
	return cli.Command{
		Name:  "serve",
		Usage: "starts the multi-process server",
		Action: func(c *cli.Context) error {
			server, err := build(c)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			if err := server.Run(); err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			return nil
		},
	}
}

// CheckCommand returns `cli.Command`, which allows you to check the health of a running
// instance with `ServiceSocket` enabled in its `Config`.
func CheckCommand(cfg Config) cli.Command {
	const detailsFlag = "details"
	return cli.Command{
		Name:  "check",
		Usage: "receives information about the status of a running service through an open service socket",
		Action: func(c *cli.Context) error {
			client := socket.NewClient(cfg.SocketName())
			resp, err := client.Send(socket.Request{Action: StatusAction})
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			if resp.Status != socket.StatusOk {
				return cli.NewExitError(resp.Error, 1)
			}

			stateInfo, err := ParseStateInfo(resp.Data)
			if err != nil {
				return cli.NewExitError("invalid response: "+err.Error(), 1)
			}

			for pid, state := range stateInfo.Workers {
				if state != WStateRunning {
					return cli.NewExitError(fmt.Sprintf("worker %d is not active", pid), 7)
				}
			}

			if !c.Bool(detailsFlag) {
				return nil
			}

			data, err := json.MarshalIndent(stateInfo, "", "  ")
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			println(string(data))
			return nil
		},

		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  detailsFlag + ", d",
				Usage: "if true, then prints the detailed json result to the stdout, otherwise the output will be empty",
			},
		},
	}
}
