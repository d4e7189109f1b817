package daemon

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"pidish/internal/link"
	"pidish/internal/logging"
	"pidish/internal/printer"
	"pidish/internal/variables"
)

// verbVariables names the persisted variables each verb falls back on.
var verbVariables = map[printer.Kind][]string{
	printer.KindLiftMove:    {printer.KeyLiftSpeed, printer.KeyLiftAmount},
	printer.KindPrintObject: {printer.KeyExposure},
	printer.KindCalibrate:   {printer.KeyCaliMinTime, printer.KeyCaliMaxTime},
}

// Submit validates a wire map, fills omitted parameters from the persisted
// variables, and queues the command for the control loop. Invalid maps are
// dropped before they reach the link.
func (d *Daemon) Submit(wire map[string]string) (printer.Command, error) {
	if !d.running.Load() {
		return printer.Command{}, ErrNotRunning
	}
	if d.PrinterStatus().Terminal() {
		return printer.Command{}, ErrShuttingDown
	}

	logger := d.logger.With(logging.String(logging.FieldCommand, wire[printer.KeyCommand]))
	if err := variables.Check(wire); err != nil {
		logger.Debug("command dropped", logging.Error(err))
		return printer.Command{}, fmt.Errorf("%w: %w", printer.ErrMalformed, err)
	}

	kind, _ := printer.LookupVerb(wire[printer.KeyCommand])
	filled := d.vars.Fill(wire, verbVariables[kind]...)
	if path := strings.TrimSpace(filled[printer.KeyObjectPath]); path != "" && !filepath.IsAbs(path) {
		filled[printer.KeyObjectPath] = filepath.Join(d.cfg.Paths.ObjectsDir, path)
	}

	cmd, err := printer.Parse(filled)
	if err == nil && cmd.Kind == printer.KindLiftMove && cmd.Amount > d.cfg.Motion.LiftLength {
		err = fmt.Errorf("%w: %s exceeds lift length %g", printer.ErrMalformed, printer.KeyLiftAmount, d.cfg.Motion.LiftLength)
	}
	if err != nil {
		logger.Debug("command dropped", logging.Error(err))
		return printer.Command{}, err
	}

	if err := d.link.Submit(cmd); err != nil {
		if errors.Is(err, link.ErrClosed) {
			return printer.Command{}, ErrShuttingDown
		}
		return printer.Command{}, err
	}
	if err := d.vars.Update(wire); err != nil {
		logging.WarnWithContext(logger, "could not save variables", "variables_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions"),
			logging.String(logging.FieldImpact, "parameters will not be remembered"),
		)
	}
	logger.Info("command queued", logging.String("verb", cmd.Verb()))
	return cmd, nil
}
