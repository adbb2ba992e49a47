// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package lifecycle holds the OS-facing pieces of a launch: spawning the
child, serializing launches, recording PIDs and auditing what happened.

# Process Spawning

The child runs in its own session with stdin closed and both output
streams on one file:

	spawner := lifecycle.NewSpawner()
	proc, err := spawner.Start("/usr/bin/java", args, lifecycle.SpawnOptions{
	    Dir:    "/opt/your-app",
	    Output: consoleLog,
	})
	if err != nil {
	    // Handle error
	}
	proc.Release() // or proc.Wait(ctx) to block until exit

# Launch Lock

Launches that share a log root take an exclusive flock first, so two
launchers never interleave a staging swap:

	lock := lifecycle.NewLaunchLock("/var/log/your-app/.javactl.lock")
	if err := lock.Acquire(); errors.Is(err, lifecycle.ErrLaunchInProgress) {
	    // Someone else is launching
	}
	defer lock.Release()

# Audit Log

Each launch appends JSON lines sharing one launch id:

	audit := lifecycle.NewAuditLog("/var/log/your-app/javactl-audit.jsonl", "your-app")
	audit.LogStart(configPath)
	audit.LogLaunched(proc.PID, logPath, args)
*/
package lifecycle
