/*
Package resilience keeps destination hosts that keep failing from tying up
proxied requests.

HostBreakers counts consecutive transport failures per host. At Threshold the
host opens and calls fail fast with ErrCircuitOpen. After Cooldown a single
probe is let through: success closes the host, failure opens it again.

	breakers := resilience.NewHostBreakers(resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	})

	err := breakers.Do(target.Host, func() error {
		resp, err = client.Do(req)
		return err
	})

A request canceled by the browser says nothing about the destination and is
not counted.
*/
package resilience
