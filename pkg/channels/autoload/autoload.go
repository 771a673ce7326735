// Package autoload registers every built-in channel factory via side
// effects. Import it with a blank identifier from the main package.
package autoload

import (
	_ "aura/pkg/channels/telegram"
	_ "aura/pkg/channels/web"
)
