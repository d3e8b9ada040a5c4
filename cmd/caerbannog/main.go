// The caerbannog command is the stock binary: an App with no targets or
// roles. It still serves the secret-handling subcommands (encrypt, decrypt,
// view); configuration repositories build their own binary against the
// caerbannog package instead.
package main

import "caerbannog"

func main() {
	caerbannog.NewApp().Main()
}
