// Package process supervises the serialosc daemon when monomed is
// configured to manage it. The supervisor starts serialoscd in its
// own process group, relays its output to the structured log, and
// restarts it after unexpected exits with a fixed delay and an
// optional attempt cap.
//
//	mgr := process.NewManager(process.Config{
//	    Name:               "serialoscd",
//	    Binary:             "/usr/local/bin/serialoscd",
//	    RestartOnFailure:   true,
//	    RestartDelay:       5 * time.Second,
//	    MaxRestartAttempts: 10,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
