package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/app"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/model"
	"github.com/justyntemme/shelf/internal/notify"
	"github.com/justyntemme/shelf/internal/preview"
)

// open navigates to loc (or the last location when empty), applies the
// query and waits for the listing.
func (e *env) open(loc string) (app.Snapshot, error) {
	var target location.Location
	if loc != "" {
		target = location.Parse(loc)
	}
	<-e.browser.Start(target)
	if e.query != "" {
		e.browser.Search().SetQuery(e.query)
		e.browser.Search().Submit()
	}
	snap := e.browser.Snapshot()
	if snap.ListErr != nil {
		return snap, fmt.Errorf("%s: %s", snap.Location.Label(), api.Reason(snap.ListErr))
	}
	return snap, nil
}

// find locates the listed item at path p, opening its parent folder.
func (e *env) find(p string) (model.Item, error) {
	p = location.Clean(p)
	if _, err := e.open(location.Parent(p)); err != nil {
		return model.Item{}, err
	}
	// Search the unfiltered model: the item may be hidden by -q.
	if it, ok := e.browser.State().ItemAt(p); ok {
		return it, nil
	}
	return model.Item{}, fmt.Errorf("%s: not found", p)
}

func printItems(snap app.Snapshot) {
	crumbs := make([]string, len(snap.Breadcrumbs))
	for i, c := range snap.Breadcrumbs {
		crumbs[i] = c.Label
	}
	fmt.Println(strings.Join(crumbs, " › "))

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, it := range snap.Items {
		size := ""
		if !it.IsFolder() {
			size = humanize.Bytes(uint64(max(it.Size, 0)))
		}
		when := ""
		if !it.ModifiedAt.IsZero() {
			when = humanize.Time(it.ModifiedAt)
		}
		name := it.Name
		if it.IsFolder() {
			name += "/"
		}
		extra := strings.Join(it.Tags, ",")
		if it.SharedBy != "" {
			extra = strings.TrimPrefix(extra+" shared by "+it.SharedBy, " ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, it.Kind, size, when, extra)
	}
	tw.Flush()

	summary := fmt.Sprintf("%d items", len(snap.Items))
	if len(snap.Items) != snap.Total {
		summary = fmt.Sprintf("%d of %d items", len(snap.Items), snap.Total)
	}
	fmt.Println(summary)
}

// printNotifications shows warnings and errors raised while a command ran.
func printNotifications(snap app.Snapshot) {
	for _, n := range snap.Notifications {
		if n.Kind < notify.Warning {
			continue
		}
		line := n.Title
		if n.Message != "" {
			line += ": " + n.Message
		}
		fmt.Fprintf(os.Stderr, "%s: %s\n", n.Kind, line)
	}
}

// finish waits for ops and reports failures.
func (e *env) finish(ops ...*app.PendingOp) error {
	var errs []error
	for _, op := range ops {
		if err := op.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op.Kind, op.Name, err))
		}
	}
	printNotifications(e.browser.Snapshot())
	return errors.Join(errs...)
}

func (e *env) ls(args []string) error {
	snap, err := e.open(argLocation(args))
	if err != nil {
		return err
	}
	printItems(snap)
	return nil
}

func (e *env) watch(args []string) error {
	if _, err := e.open(argLocation(args)); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	changed := make(chan struct{}, 1)
	unsubscribe := e.browser.Subscribe(func(s app.Snapshot) {
		if s.Loading {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	printItems(e.browser.Snapshot())
	var last []string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			snap := e.browser.Snapshot()
			cur := make([]string, len(snap.Items))
			for i, it := range snap.Items {
				cur[i] = it.ID + "|" + it.ModifiedAt.String()
			}
			if strings.Join(cur, "\n") == strings.Join(last, "\n") {
				continue
			}
			last = cur
			fmt.Println()
			printItems(snap)
		}
	}
}

func (e *env) mkdir(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: mkdir <parent> <name>")
	}
	if _, err := e.open(args[0]); err != nil {
		return err
	}
	op, err := e.browser.CRUD().CreateFolder(args[1])
	if err != nil {
		return err
	}
	return e.finish(op)
}

func (e *env) rename(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: rename <path> <name>")
	}
	it, err := e.find(args[0])
	if err != nil {
		return err
	}
	op, err := e.browser.CRUD().Rename(it.ID, args[1])
	if err != nil {
		return err
	}
	return e.finish(op)
}

func (e *env) mv(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: mv <path>... <dest>")
	}
	dest := args[len(args)-1]
	var ops []*app.PendingOp
	for _, p := range args[:len(args)-1] {
		it, err := e.find(p)
		if err != nil {
			return err
		}
		op, err := e.browser.Drag().ProposeMove(it.ID, dest)
		if errors.Is(err, app.ErrNoOpMove) {
			fmt.Printf("%s is already in %s\n", it.Name, location.Clean(dest))
			continue
		}
		if err != nil {
			return err
		}
		// Each source may sit in a different folder; finish before moving on.
		if err := e.finish(op); err != nil {
			return err
		}
		ops = append(ops, op)
	}
	fmt.Printf("moved %d items\n", len(ops))
	return nil
}

func (e *env) rm(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: rm <path>...")
	}
	for _, p := range args {
		it, err := e.find(p)
		if err != nil {
			return err
		}
		op, err := e.browser.CRUD().Delete(it.ID)
		if err != nil {
			return err
		}
		if err := e.finish(op); err != nil {
			return err
		}
	}
	return nil
}

func (e *env) restore(args []string) error {
	if e.local == nil {
		return errors.New("restore is only available for the local backend")
	}
	if len(args) != 1 {
		return errors.New("usage: restore <name>")
	}
	snap, err := e.open(":" + string(location.Trash))
	if err != nil {
		return err
	}
	for _, it := range snap.Items {
		if it.Name == args[0] {
			restored, err := e.local.Restore(it)
			if err != nil {
				return errors.New(api.Reason(err))
			}
			fmt.Println("restored", restored.Path)
			return nil
		}
	}
	return fmt.Errorf("%s is not in the trash", args[0])
}

func (e *env) fav(args []string) error {
	ctx := context.Background()
	if len(args) == 0 || args[0] == "ls" {
		favs, err := e.db.Favorites(ctx)
		if err != nil {
			return err
		}
		for _, f := range favs {
			fmt.Println(f)
		}
		return nil
	}
	if len(args) != 2 {
		return errors.New("usage: fav add|rm <path>")
	}
	p := location.Clean(args[1])
	switch args[0] {
	case "add":
		return e.db.AddFavorite(ctx, p)
	case "rm":
		return e.db.RemoveFavorite(ctx, p)
	}
	return fmt.Errorf("unknown fav command %q", args[0])
}

func (e *env) preview(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: preview <path> [zoom-in|zoom-out|rotate-left|rotate-right]...")
	}
	it, err := e.find(args[0])
	if err != nil {
		return err
	}
	v := e.browser.Preview()
	if err := e.browser.OpenPreview(it.ID); err != nil {
		return err
	}
	v.Wait()

	// One retry for a transient failure; zoom and rotation carry over.
	if s, _ := v.Current(); s.State == preview.Failed && v.Retry() {
		v.Wait()
	}
	s, _ := v.Current()
	defer v.Close()
	if s.State != preview.Loaded {
		return fmt.Errorf("%s: %v", it.Name, s.Err)
	}

	for _, action := range args[1:] {
		switch action {
		case "zoom-in":
			v.ZoomIn()
		case "zoom-out":
			v.ZoomOut()
		case "rotate-left":
			v.RotateLeft()
		case "rotate-right":
			v.RotateRight()
		default:
			return fmt.Errorf("unknown preview action %q", action)
		}
	}
	s, _ = v.Current()

	fmt.Printf("%s\n  type: %s\n", s.Name, s.Info.ContentType)
	if s.Info.Size > 0 {
		fmt.Printf("  size: %s\n", humanize.Bytes(uint64(s.Info.Size)))
	}
	if s.Info.Width > 0 {
		fmt.Printf("  dimensions: %dx%d\n", s.Info.Width, s.Info.Height)
	}
	fmt.Printf("  zoom: %.2fx  rotation: %d°\n", s.Zoom, s.Rotation)
	if ext := s.Extent(); ext.X > 0 {
		fmt.Printf("  rendered: %.0fx%.0f\n", ext.X, ext.Y)
	}
	return nil
}
