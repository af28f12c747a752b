// Package cli implements the mukon command-line client.
//
// Commands operate on a sealed identity key kept under the home directory:
//
//	keygen                        create and seal a new identity
//	whoami                        print the identity
//	register <name>               create profile and peer directory
//	update-profile <name>         change name, optionally upload an avatar
//	invite|accept|reject <peer>   manage the peer directory
//	show <identity>               print a profile
//	contacts [--offline]          list peers, from the ledger or the cache
//	avatar <identity>             print a download URL for a peer's avatar
//	chat <peer>                   talk to a peer through the relay
//
// The key passphrase is read from MUKON_PASSPHRASE when set, otherwise from
// the terminal.
package cli
