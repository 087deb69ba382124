// Package deploy transfers build artifacts to remote hosts, either through the
// system scp binary or over a native ssh/sftp connection.
package deploy

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Dest is a parsed deploy destination of the form [user@]host[:path].
// An empty path means the remote default directory.
type Dest struct {
	User string
	Host string
	Path string
}

func ParseDest(raw string) (Dest, error) {
	var dest Dest

	if raw == "" {
		return dest, eris.New("destination must not be empty")
	}

	rest := raw
	if pos := strings.Index(rest, "@"); pos > -1 {
		dest.User = rest[:pos]
		rest = rest[pos+1:]
	}

	if pos := strings.Index(rest, ":"); pos > -1 {
		dest.Path = rest[pos+1:]
		rest = rest[:pos]
	}

	dest.Host = rest
	if dest.Host == "" {
		return dest, eris.Errorf("destination %s contains no host", raw)
	}

	return dest, nil
}

// Remote returns the host part in user@host format, as understood by scp and ssh
func (d Dest) Remote() string {
	if d.User != "" {
		return fmt.Sprintf("%s@%s", d.User, d.Host)
	}

	return d.Host
}

func (d Dest) String() string {
	result := d.Remote()
	if d.Path != "" {
		result += ":" + d.Path
	}

	return result
}
