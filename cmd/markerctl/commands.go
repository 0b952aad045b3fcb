package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/internal/form"
	"github.com/pkordes/change-observer/internal/metrics"
	"github.com/pkordes/change-observer/internal/service"
	"github.com/pkordes/change-observer/internal/view"
)

type command func(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int

var commands = map[string]command{
	"list":   cmdList,
	"get":    cmdGet,
	"create": cmdCreate,
	"update": cmdUpdate,
	"delete": cmdDelete,
	"watch":  cmdWatch,
}

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

// intList collects a repeatable integer flag.
type intList []int

func (l *intList) String() string { return fmt.Sprint(*l) }

func (l *intList) Set(v string) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("not an index: %q", v)
	}
	*l = append(*l, i)
	return nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// idArg splits "<id> [flags]" and parses the flags.
func idArg(fs *flag.FlagSet, args []string, stderr io.Writer) (string, bool) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintf(stderr, "Usage: markerctl %s <id>\n", fs.Name())
		return "", false
	}
	if err := fs.Parse(args[1:]); err != nil {
		return "", false
	}
	return args[0], true
}

// fail prints err and returns the failure status. Validation failures are
// listed field by field; everything else has already been reported by the
// store client's notifier.
func fail(stderr io.Writer, err error) int {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		for _, f := range ve.Fields {
			fmt.Fprintf(stderr, "  %s: %s\n", f.Field, f.Message)
		}
		return exitFail
	}
	if errors.Is(err, service.ErrMissingMarkerID) || errors.Is(err, form.ErrIndexOutOfRange) || errors.Is(err, view.ErrNotReady) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitFail
}

// ---- list ------------------------------------------------------------------

func cmdList(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("list", stderr)
	points := fs.Bool("points", false, "print map points (lat/lng and web-mercator x/y) instead")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	v := view.NewListView(a.svc, a.viewOptions()...)
	defer v.Close()
	if err := v.Load(ctx); err != nil {
		return fail(stderr, err)
	}

	if *points {
		for _, p := range v.Points() {
			fmt.Fprintf(stdout, "%s\t%.6f\t%.6f\t%.2f\t%.2f\n", p.MarkerID, p.Lat, p.Lng, p.X, p.Y)
		}
		return exitOK
	}
	if err := v.Render(stdout); err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

// ---- get -------------------------------------------------------------------

func cmdGet(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	id, ok := idArg(newFlagSet("get", stderr), args, stderr)
	if !ok {
		return exitUsage
	}

	v := view.NewDetailView(a.svc, id, a.viewOptions()...)
	defer v.Close()
	err := v.Load(ctx)
	if rerr := v.Render(stdout); rerr != nil {
		return fail(stderr, rerr)
	}
	if err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

// ---- create ----------------------------------------------------------------

func cmdCreate(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("create", stderr)
	name := fs.String("name", "", "marker name (required)")
	lat := fs.String("lat", "", "latitude in decimal degrees (required)")
	lng := fs.String("lng", "", "longitude in decimal degrees (required)")
	var emails stringList
	fs.Var(&emails, "email", "subscriber email (repeatable)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	f := form.NewAdd(a.svc, form.WithPolicy(a.policy()))
	f.SetName(*name)
	pick(f, *lat, *lng)
	for _, e := range emails {
		if _, err := f.Emails().Add(e); err != nil {
			fmt.Fprintf(stderr, "email %q:\n", e)
			return fail(stderr, err)
		}
	}

	m, err := f.Submit(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, m.MarkerID)
	return exitOK
}

// pick places the location on the form the way a map click would. Values
// that do not parse are passed through so validation can name them.
func pick(f *form.MarkerForm, lat, lng string) {
	la, errLat := strconv.ParseFloat(lat, 64)
	ln, errLng := strconv.ParseFloat(lng, 64)
	if errLat != nil || errLng != nil {
		f.SelectLocation(domain.Coordinate{Latitude: lat, Longitude: lng})
		return
	}
	f.Selector().Click(la, ln)
}

// ---- update ----------------------------------------------------------------

func cmdUpdate(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("update", stderr)
	name := fs.String("name", "", "new marker name")
	lat := fs.String("lat", "", "new latitude (with -lng)")
	lng := fs.String("lng", "", "new longitude (with -lat)")
	var add stringList
	var remove intList
	fs.Var(&add, "email", "subscriber email to add (repeatable)")
	fs.Var(&remove, "remove-email", "position of a subscriber email to remove (repeatable)")
	id, ok := idArg(fs, args, stderr)
	if !ok {
		return exitUsage
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["lat"] != set["lng"] {
		fmt.Fprintln(stderr, "Error: -lat and -lng must be given together")
		return exitUsage
	}

	v := view.NewDetailView(a.svc, id, a.viewOptions()...)
	defer v.Close()
	if err := v.Load(ctx); err != nil {
		if v.Status() == view.StatusNotFound {
			_ = v.Render(stderr)
		}
		return fail(stderr, err)
	}
	f, err := v.Edit()
	if err != nil {
		return fail(stderr, err)
	}

	if set["name"] {
		f.SetName(*name)
	}
	if set["lat"] {
		pick(f, *lat, *lng)
	}
	slices.Sort(remove)
	for _, i := range slices.Backward(slices.Compact(remove)) {
		if err := f.Emails().RemoveAt(i); err != nil {
			return fail(stderr, err)
		}
	}
	for _, e := range add {
		if _, err := f.Emails().Add(e); err != nil {
			fmt.Fprintf(stderr, "email %q:\n", e)
			return fail(stderr, err)
		}
	}

	m, err := f.Submit(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, m.MarkerID)
	return exitOK
}

// ---- delete ----------------------------------------------------------------

func cmdDelete(ctx context.Context, a *app, args []string, _, stderr io.Writer) int {
	id, ok := idArg(newFlagSet("delete", stderr), args, stderr)
	if !ok {
		return exitUsage
	}

	v := view.NewDetailView(a.svc, id, a.viewOptions()...)
	defer v.Close()
	if err := v.Delete(ctx); err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

// ---- watch -----------------------------------------------------------------

func cmdWatch(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("watch", stderr)
	interval := fs.Duration("interval", a.cfg.Watch.Interval, "how often to re-read the marker list")
	metricsAddr := fs.String("metrics-addr", a.cfg.Metrics.Addr, "serve Prometheus /metrics on this address")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *interval <= 0 {
		fmt.Fprintln(stderr, "Error: -interval must be positive")
		return exitUsage
	}

	if *metricsAddr != "" {
		stop := serveMetrics(a, *metricsAddr)
		defer stop()
	}

	var mu sync.Mutex
	last := ""
	var v *view.ListView
	v = view.NewListView(a.svc, a.viewOptions(view.WithOnChange(func() {
		var b strings.Builder
		_ = v.Render(&b)
		mu.Lock()
		defer mu.Unlock()
		if b.String() == last {
			return
		}
		last = b.String()
		fmt.Fprintf(stdout, "--- %s\n%s", time.Now().Format(time.RFC3339), last)
	}))...)
	defer v.Close()

	watched := make(chan error, 1)
	go func() { watched <- v.Watch(ctx) }()

	// The first read is allowed to fail; the next tick retries.
	_ = v.Load(ctx)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			v.Close()
			<-watched
			return exitOK
		case err := <-watched:
			if err != nil && ctx.Err() == nil {
				return fail(stderr, err)
			}
			return exitOK
		case <-ticker.C:
			a.cache.Invalidate(service.MarkersKey())
		}
	}
}

// serveMetrics exposes the app registry on addr until the returned func is called.
func serveMetrics(a *app, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.log.Info("metrics server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Error("metrics server shutdown error", "error", err)
		}
	}
}
