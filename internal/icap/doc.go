// Package icap implements the client side of the Internet Content Adaptation
// Protocol (RFC 3507) as used by antivirus gateways.
//
// A scan is a single pass over one TCP connection:
//
//	Connecting -> Negotiating (OPTIONS) -> Submitting (RESPMOD) -> Closed
//
// The OPTIONS exchange must answer 200. The RESPMOD exchange answers 204 when
// the content is unmodified (clean), or 200 together with an infection
// indicator header (X-Infection-Found by default) when the scanner found
// something. Any other answer is reported as a typed *Error.
//
// # Usage
//
//	client, err := icap.NewClient(icap.Server{
//	    Host:     "127.0.0.1",
//	    Port:     1344,
//	    Endpoint: "avscan",
//	}, icap.WithTimeout(30*time.Second))
//	if err != nil {
//	    return err
//	}
//
//	result, err := client.Scan(ctx, &icap.ScanRequest{
//	    Payload:     data,
//	    Name:        "report.pdf",
//	    ContentType: "application/pdf",
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println("clean:", result.Clean)
//
// Every exchange carries its own deadline. Connections are never reused: each
// call to Scan dials, negotiates, submits and closes.
package icap
