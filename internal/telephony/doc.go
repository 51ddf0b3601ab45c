// Package telephony carries the phone leg of a call over UDP. Inbound
// datagrams hold 8 kHz mu-law caller audio that is expanded to 24 kHz PCM-16
// for the realtime leg; outbound agent audio is decimated, companded and
// paced back to the peer in 20 ms frames.
package telephony
