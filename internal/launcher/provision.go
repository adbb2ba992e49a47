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

package launcher

import (
	"fmt"
	"io"
	"os"

	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

// DefaultDirMode is the mode used for created log directories.
const DefaultDirMode os.FileMode = 0755

// Provisioner creates the log tree.
type Provisioner struct {
	// Out receives one "Creating directory: <path>" line per created directory.
	Out  io.Writer
	Mode os.FileMode
}

// NewProvisioner creates a provisioner that reports to out.
func NewProvisioner(out io.Writer) *Provisioner {
	return &Provisioner{Out: out, Mode: DefaultDirMode}
}

// Ensure creates the missing directories of the log tree below logRoot in
// the order console, gc, dump. Existing directories are left alone and not
// reported, so a second call is silent.
func (p *Provisioner) Ensure(logRoot string) (LogDirectorySet, error) {
	dirs := NewLogDirectorySet(logRoot)
	mode := p.Mode
	if mode == 0 {
		mode = DefaultDirMode
	}

	for _, dir := range dirs.Dirs() {
		info, err := os.Stat(dir)
		switch {
		case err == nil && info.IsDir():
			continue
		case err == nil:
			return dirs, &javactlerrors.FilesystemError{
				Op:    "create directory",
				Path:  dir,
				Cause: fmt.Errorf("path exists and is not a directory"),
			}
		case !os.IsNotExist(err):
			return dirs, &javactlerrors.FilesystemError{Op: "stat", Path: dir, Cause: err}
		}

		if p.Out != nil {
			fmt.Fprintf(p.Out, "Creating directory: %s\n", dir)
		}
		if err := os.MkdirAll(dir, mode); err != nil {
			return dirs, &javactlerrors.FilesystemError{Op: "create directory", Path: dir, Cause: err}
		}
	}

	return dirs, nil
}
