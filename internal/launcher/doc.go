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

// Package launcher turns a javactl configuration into a running JVM.
//
// A launch runs these steps in order:
//
//  1. Resolve the configuration into a LaunchConfig (paths expanded and absolute).
//  2. Provision the log tree <logRoot>/{console,gc,dump}.
//  3. Swap in a staged artifact from <jarDir>/staging/staging-<jar>, if present.
//  4. Build the ordered JVM argument vector.
//  5. Start the JVM with stdout and stderr in <logRoot>/console/console_<ts>.log.
//
// The console log and the GC log of one launch share the same timestamp.
// The launcher returns once the child has started unless wait mode is set,
// in which case it blocks until the child exits and reports its exit code.
package launcher
