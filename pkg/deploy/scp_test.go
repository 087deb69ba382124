package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScpArgs(t *testing.T) {
	dest, err := ParseDest("pi@ledstrip:/opt/led-strip-controller")
	require.NoError(t, err)

	cmd := NewScpCommand(dest, nil)
	args := cmd.Args("target/arm-unknown-linux-gnueabihf/release/led-strip-controller")

	assert.Equal(t, []string{
		"target/arm-unknown-linux-gnueabihf/release/led-strip-controller",
		"pi@ledstrip:/opt/led-strip-controller",
	}, args)
}

func TestScpArgsEmptyPath(t *testing.T) {
	dest, err := ParseDest("ledstrip")
	require.NoError(t, err)

	cmd := NewScpCommand(dest, nil)
	args := cmd.Args("controller")

	// the trailing colon makes scp treat the operand as remote
	assert.Equal(t, "ledstrip:", args[len(args)-1])
}

func TestScpArgsOptions(t *testing.T) {
	dest, err := ParseDest("pi@ledstrip:")
	require.NoError(t, err)

	cmd := NewScpCommand(dest, []string{"-i", "/home/pi/.ssh/id_ed25519", "-C"})
	args := cmd.Args("controller")

	assert.Equal(t, []string{"-i", "/home/pi/.ssh/id_ed25519", "-C", "controller", "pi@ledstrip:"}, args)
}
